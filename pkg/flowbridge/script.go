package flowbridge

import (
	"encoding/json"
	"fmt"
)

// HostObject is the name the PageHost exposes its message interface under.
// The setup script posts page events to it.
const HostObject = "authkitHost"

// ResponseEntryPoint is the page function native responses are delivered to
// as (typeName, payloadJson).
const ResponseEntryPoint = "window.authkitBridge.internal.respond"

type hostInfo struct {
	Platform    string `json:"platform"`
	OAuthNative bool   `json:"oauthNative"`
	Passkeys    bool   `json:"passkeys"`
}

// setupScript hooks the page: it advertises what the native side supports,
// forwards console output and uncaught errors, and relays component events.
func setupScript(info hostInfo) string {
	raw, _ := json.Marshal(info)
	return fmt.Sprintf(`(function() {
  if (window.authkitBridge) { return; }
  var host = window.%[1]s;
  window.authkitBridge = {
    hostInfo: %[2]s,
    internal: {
      respond: function(type, payload) {
        var c = document.querySelector('authkit-wc');
        if (c && c.nativeResume) { c.nativeResume(type, payload); }
      }
    }
  };
  ['log', 'debug', 'info', 'warn', 'error'].forEach(function(tag) {
    var orig = console[tag];
    console[tag] = function() {
      host.log(tag, Array.prototype.join.call(arguments, ' '));
      orig.apply(console, arguments);
    };
  });
  window.addEventListener('error', function(e) { host.log('fail', String(e.message)); });
  var attach = function(c) {
    host.found(c.getAttribute('session-cookie-name') || '', c.getAttribute('refresh-cookie-name') || '');
    c.addEventListener('ready', function() { host.ready('event'); });
    c.addEventListener('success', function(e) { host.success(JSON.stringify(e.detail || {}), window.location.href); });
    c.addEventListener('error', function(e) { host.error(String((e.detail && e.detail.errorMessage) || e.detail)); });
    c.addEventListener('abort', function(e) { host.abort(String(e.detail || '')); });
    c.addEventListener('bridge', function(e) { host.native(JSON.stringify(e.detail), window.location.href); });
    if (c.loaded) { host.ready('immediate'); }
  };
  var c = document.querySelector('authkit-wc');
  if (c) { attach(c); return; }
  new MutationObserver(function(_, obs) {
    var c = document.querySelector('authkit-wc');
    if (c) { obs.disconnect(); attach(c); }
  }).observe(document, {childList: true, subtree: true});
})();`, HostObject, raw)
}

// respondScript invokes the page's response entry point. Both arguments
// are JSON string literals, which are valid JavaScript string literals.
func respondScript(typeName, payload string) string {
	t, _ := json.Marshal(typeName)
	p, _ := json.Marshal(payload)
	return fmt.Sprintf("%s(%s, %s);", ResponseEntryPoint, t, p)
}
