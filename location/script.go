package location

import (
	"bytes"
	"html/template"
)

// The script asks for one fix and relays the outcome by reloading the page with query
// parameters. maximumAge is always 0 so a cached fix is never reused.
var scriptTemplate = template.Must(template.New("geolocation").Parse(`<script>
(function () {
  var requestId = {{.ID}};
  var params = {
    request: {{.ParamRequest}}, lat: {{.ParamLatitude}}, lon: {{.ParamLongitude}},
    code: {{.ParamErrCode}}, message: {{.ParamErrMsg}}
  };
  function relay(values) {
    var url = new URL(window.location.href);
    url.search = "";
    url.searchParams.set(params.request, requestId);
    Object.keys(values).forEach(function (key) {
      url.searchParams.set(params[key], String(values[key]));
    });
    window.location.replace(url.toString());
  }
  if (!("geolocation" in navigator)) {
    relay({code: {{.CodeUnsupported}}, message: "geolocation is not supported by this browser"});
    return;
  }
  navigator.geolocation.getCurrentPosition(function (pos) {
    relay({lat: pos.coords.latitude, lon: pos.coords.longitude});
  }, function (err) {
    relay({code: err.code, message: err.message || ""});
  }, {enableHighAccuracy: true, timeout: {{.TimeoutMillis}}, maximumAge: {{.MaximumAgeMillis}}});
})();
</script>`))

type scriptData struct {
	ID               string
	ParamRequest     string
	ParamLatitude    string
	ParamLongitude   string
	ParamErrCode     string
	ParamErrMsg      string
	CodeUnsupported  int
	TimeoutMillis    int64
	MaximumAgeMillis int64
}

// Script renders the client-side acquisition snippet for req.
func Script(req Request) (template.HTML, error) {
	var buf bytes.Buffer
	err := scriptTemplate.Execute(&buf, scriptData{
		ID:               req.ID,
		ParamRequest:     ParamRequest,
		ParamLatitude:    ParamLatitude,
		ParamLongitude:   ParamLongitude,
		ParamErrCode:     ParamErrCode,
		ParamErrMsg:      ParamErrMsg,
		CodeUnsupported:  CodeUnsupported,
		TimeoutMillis:    req.Timeout.Milliseconds(),
		MaximumAgeMillis: req.MaximumAge.Milliseconds(),
	})
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
