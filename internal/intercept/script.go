package intercept

// BindingName is the page-exposed callback the hooks report through.
const BindingName = "__pageReconSight"

// hookScript wraps the page's two request primitives before any page script
// runs. Both wrappers delegate to the originals with untouched arguments and
// return values, so instrumented pages behave exactly like bare ones. Every
// hook body is guarded: a failure inside reporting must never break the
// page's own request.
const hookScript = `(function () {
  try {
    if (window.__prHooksInstalled) return;
    window.__prHooksInstalled = true;

    function report(method, url, source) {
      try {
        var abs = String(new URL(url, location.href));
        var sink = window.__pageReconSight;
        if (typeof sink === 'function') {
          sink(JSON.stringify({
            method: method || 'GET',
            url: abs,
            source: source,
            timestamp: Date.now()
          }));
        }
      } catch (e) {}
    }

    var _fetch = window.fetch;
    if (typeof _fetch === 'function') {
      window.fetch = function (input, init) {
        try {
          var url = (input && typeof input === 'object' && 'url' in input) ? input.url : String(input);
          var method = (init && init.method) ||
            (input && typeof input === 'object' && input.method) || 'GET';
          report(method, url, 'fetch');
        } catch (e) {}
        return _fetch.apply(this, arguments);
      };
    }

    if (window.XMLHttpRequest && XMLHttpRequest.prototype) {
      var _open = XMLHttpRequest.prototype.open;
      var _send = XMLHttpRequest.prototype.send;
      XMLHttpRequest.prototype.open = function (method, url) {
        try {
          this.__prMethod = method;
          this.__prUrl = url;
        } catch (e) {}
        return _open.apply(this, arguments);
      };
      XMLHttpRequest.prototype.send = function () {
        try {
          report(this.__prMethod, this.__prUrl, 'xhr');
        } catch (e) {}
        return _send.apply(this, arguments);
      };
    }
  } catch (e) {}
})();`
