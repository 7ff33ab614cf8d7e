package web

// pageTemplates holds the panel's two pages. The panel is a LAN utility, so
// the markup stays deliberately plain.
const pageTemplates = `
{{define "login"}}
<!DOCTYPE html>
<html>
<head><title>prayerhub login</title></head>
<body>
<h1>prayerhub</h1>
{{if .Error}}<p style="color:red">{{.Error}}</p>{{end}}
<form method="post" action="/login">
  <label>Username <input name="username" autofocus></label><br>
  <label>Password <input name="password" type="password"></label><br>
  <button type="submit">Log in</button>
</form>
</body>
</html>
{{end}}

{{define "dashboard"}}
<!DOCTYPE html>
<html>
<head><title>prayerhub</title></head>
<body>
<h1>prayerhub</h1>
{{if .Flash}}<p><em>{{.Flash}}</em></p>{{end}}

<h2>Status</h2>
<ul>
  <li>Bluetooth connected: <span id="bt">{{.Status.BluetoothConnected}}</span></li>
  <li>Keepalive running: <span id="ka">{{.Status.KeepaliveRunning}}</span> (cycling: {{.Status.KeepaliveCycling}})</li>
  <li>Master volume: <span id="vol">{{.Status.MasterPercent}}</span>%</li>
  <li>As of: <span id="asof">now</span></li>
</ul>

<h2>Upcoming jobs</h2>
<table border="1" cellpadding="4">
  <tr><th>Job</th><th>Runs at</th></tr>
  {{range .Status.Jobs}}
  <tr><td>{{.ID}}</td><td>{{.RunAt.Format "2006-01-02 15:04"}}</td></tr>
  {{else}}
  <tr><td colspan="2">none</td></tr>
  {{end}}
</table>

<h2>Test audio</h2>
<form method="post" action="/test/at">
  <label>At (HH:MM) <input name="time" placeholder="21:30"></label>
  <button type="submit">Schedule</button>
</form>
<form method="post" action="/test/in">
  <label>In minutes <input name="minutes" placeholder="5"></label>
  <button type="submit">Schedule</button>
</form>
<form method="post" action="/controls/play">
  <button type="submit">Play now</button>
</form>
<table border="1" cellpadding="4">
  <tr><th>Pending test</th><th>Runs at</th><th></th></tr>
  {{range .Status.TestJobs}}
  <tr>
    <td>{{.ID}}</td>
    <td>{{.RunAt.Format "15:04"}}</td>
    <td><form method="post" action="/test/cancel"><input type="hidden" name="id" value="{{.ID}}"><button type="submit">Cancel</button></form></td>
  </tr>
  {{else}}
  <tr><td colspan="3">none</td></tr>
  {{end}}
</table>

<h2>Volume</h2>
<form method="post" action="/controls/volume" style="display:inline">
  <input type="hidden" name="direction" value="down"><button type="submit">-5</button>
</form>
<form method="post" action="/controls/volume" style="display:inline">
  <input type="hidden" name="direction" value="up"><button type="submit">+5</button>
</form>

{{if .LogTail}}
<h2>Recent log</h2>
<pre>{{range .LogTail}}{{.}}
{{end}}</pre>
{{end}}

<form method="post" action="/logout"><button type="submit">Log out</button></form>

<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var ws = new WebSocket(proto + location.host + "/ws");
  ws.onmessage = function (ev) {
    var s = JSON.parse(ev.data);
    document.getElementById("bt").textContent = s.bluetooth_connected;
    document.getElementById("ka").textContent = s.keepalive_running;
    document.getElementById("vol").textContent = s.master_percent;
    document.getElementById("asof").textContent = s.time;
  };
})();
</script>
</body>
</html>
{{end}}
`
