/*
Package authsdk is a client SDK for a multi-tenant identity backend. It makes
the REST calls for each sign-in method, turns the returned JWTs into a
Session, persists that session across restarts and keeps it fresh in the
background.

# Client

A Client performs REST calls for one project. Every call carries the
composite bearer value "Bearer {projectId}" or, for user-scoped calls,
"Bearer {projectId}:{refreshJwt}":

	client, err := authsdk.NewClient(authsdk.Config{ProjectID: "P2abc"})

	_, err = client.SignInOTP(ctx, authsdk.DeliveryEmail, "alice@example.com")
	resp, err := client.VerifyOTP(ctx, authsdk.DeliveryEmail, "alice@example.com", code)

	session, err := resp.Session()

Password, TOTP and enchanted link sign-in follow the same shape. Enchanted
links are completed by polling:

	link, err := client.SignInEnchantedLink(ctx, "alice@example.com", "")
	resp, err := client.PollEnchantedLink(ctx, link.PendingRef, authsdk.PollOptions{})

# Sessions

A Session pairs a session token, a refresh token and a User snapshot. It
is immutable; WithTokens and WithUser return updated copies.

SessionManager is the type most applications hold. It tracks the current
session, writes every change to a Store and refreshes the session token
shortly before it expires:

	store, err := filestore.New(dir, logger)
	mgr := authsdk.NewSessionManager(client, authsdk.ManagerOptions{
		Store: sessionstore.Encrypted(store, sealer, logger),
	})
	defer mgr.Close()

	if err := mgr.ManageSession(session); err != nil {
		return err
	}

The refresh timer runs while the application is in the foreground. Call
Background and Foreground as the application moves between the two; the
timer stops while backgrounded and checks immediately on return.

Errors raised by timer-driven refreshes are logged and dropped so the timer
keeps running. RefreshSessionIfNeeded called directly returns them.

# Errors

Failures fall into three kinds, all matched with errors.Is or errors.As:

  - *NetworkError (errors.Is(err, ErrNetwork)): the backend could not be reached
  - *DecodeError (errors.Is(err, ErrDecode)): a malformed JWT, payload or stored value
  - *ServerError: a structured failure from the backend, matched by code only

	if errors.Is(err, authsdk.ErrInvalidOTP) {
		// ask for the code again
	}

A stored session that fails to decode is treated as absent rather than as
an error.
*/
package authsdk
