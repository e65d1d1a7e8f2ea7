// Package flowbridge drives a hosted authentication flow page and relays
// requests between the page script and native credential providers.
//
// The page itself is rendered by a PageHost supplied by the application.
// The host forwards page lifecycle events (PageStarted, PageFinished,
// PageFailed) and messages the page posts to HostObject (Found, Ready,
// Succeed, Abort, Fail, Request, Console) to the Bridge. The bridge injects
// its setup script once per flow, retries transient load failures within
// a short window, answers native requests through a Handler and reports
// exactly one terminal outcome to its Listener.
//
//	b, err := flowbridge.New(host, flowbridge.Callbacks{
//		Success: func(resp *authsdk.AuthenticationResponse) {
//			s, err := resp.Session()
//			...
//			_ = manager.ManageSession(s)
//		},
//		Error: func(err error) { ... },
//	}, flowbridge.Options{
//		ProjectID: "P123",
//		Handler:   flowbridge.NativeHandler{Passkeys: passkeys, Browser: browser},
//		CookieJar: jar,
//	})
//	defer b.Close()
//	_ = b.Start("https://auth.example.com/login?flow=sign-in")
//
// Requests and responses travel as JSON. Requests are an envelope
// {"type": ..., "payload": {...}} decoded strictly into one of the Request
// types. Responses are passed to ResponseEntryPoint as a type name and a
// JSON payload. Native failures are reported to the page as a Failure
// whose reason comes from a fixed vocabulary, see FailureReason.
package flowbridge
