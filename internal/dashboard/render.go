package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"pct": formatPercent,
}).Parse(pageHTML))

func (d *Dashboard) render(w http.ResponseWriter, status int, data formData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		log.Error().Err(err).Msg("failed to render dashboard")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func formatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Customer Churn Prediction</title>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; }
        .header p { margin: 6px 0 0; opacity: 0.85; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(320px, 1fr)); gap: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        .card h3 { margin-top: 0; color: #333; border-bottom: 2px solid #eee; padding-bottom: 10px; }
        label { display: block; font-weight: 500; color: #666; margin: 10px 0 4px; }
        input[type=number], select { width: 100%; padding: 6px; box-sizing: border-box; }
        .flags label { display: inline-block; width: 48%; font-weight: normal; }
        button { margin-top: 16px; padding: 10px 18px; background: #667eea; color: white; border: none; border-radius: 6px; cursor: pointer; }
        .error { background: #f8d7da; color: #721c24; padding: 10px; border-radius: 6px; margin-bottom: 16px; }
        .large-metric { font-size: 2.5em; text-align: center; margin: 10px 0; font-weight: bold; }
        .verdict { text-align: center; font-size: 1.3em; font-weight: bold; }
        .metric-negative { color: #dc3545; }
        .metric-positive { color: #28a745; }
        table { width: 100%; border-collapse: collapse; margin-top: 10px; }
        th, td { text-align: left; padding: 6px; border-bottom: 1px solid #eee; }
        th { background-color: #f8f9fa; font-weight: 600; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>Customer Churn Prediction</h1>
        <p>Model {{.Info.Type}} {{.Info.Version}} &middot; threshold {{.Info.Threshold}}</p>
    </div>

    {{if .Error}}<div class="error" id="error">{{.Error}}</div>{{end}}

    <div class="grid">
        <div class="card">
            <h3>Customer</h3>
            <form method="post" action="/predict">
                <label>Tenure Months</label>
                <input type="number" name="Tenure Months" min="0" step="1" value="{{index .Values "Tenure Months"}}">
                <label>Monthly Charges</label>
                <input type="number" name="Monthly Charges" min="0" step="0.01" value="{{index .Values "Monthly Charges"}}">
                <label>Total Charges</label>
                <input type="number" name="Total Charges" min="0" step="0.01" value="{{index .Values "Total Charges"}}">

                <label>Contract</label>
                <select name="Contract">
                    {{$v := index .Values "Contract"}}{{range .Contracts}}<option{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}
                </select>
                <label>Payment Method</label>
                <select name="Payment Method">
                    {{$v := index .Values "Payment Method"}}{{range .PaymentMethods}}<option{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}
                </select>
                <label>Internet Service</label>
                <select name="Internet Service">
                    {{$v := index .Values "Internet Service"}}{{range .InternetOptions}}<option{{if eq . $v}} selected{{end}}>{{.}}</option>{{end}}
                </select>

                <div class="flags">
                    <label style="width:100%">Services</label>
                    {{$checked := .Checked}}{{range .ServiceFlags}}<label><input type="checkbox" name="{{.}}" value="Yes"{{if index $checked .}} checked{{end}}> {{.}}</label>{{end}}
                </div>

                <button type="submit">Predict</button>
            </form>
        </div>

        {{with .Result}}
        <div class="card" id="result">
            <h3>Prediction</h3>
            <div class="large-metric">{{.Percent}}</div>
            <div class="verdict {{if .Churn}}metric-negative{{else}}metric-positive{{end}}">{{.Verdict}}</div>
            <p style="text-align:center;color:#666">Decision threshold: {{.Threshold}}</p>
            {{if .Contributions}}
            <table>
                <thead><tr><th>Top drivers</th><th>Log-odds</th></tr></thead>
                <tbody>
                {{range .Contributions}}<tr><td>{{.Column}}</td><td>{{printf "%+.3f" .Weight}}</td></tr>{{end}}
                </tbody>
            </table>
            {{end}}
        </div>
        {{end}}

        <div class="card">
            <h3>Recent predictions</h3>
            <table>
                <thead><tr><th>Time</th><th>Probability</th><th>Prediction</th></tr></thead>
                <tbody id="recent">
                {{range .Recent}}<tr><td>{{.Timestamp.Format "15:04:05"}}</td><td>{{pct .Probability}}</td><td>{{if eq .Label 1}}churn{{else}}stay{{end}}</td></tr>{{else}}<tr><td colspan="3" style="text-align:center;color:#666">No predictions yet</td></tr>{{end}}
                </tbody>
            </table>
        </div>
    </div>
</div>

<script>
    const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(scheme + location.host + '/ws');

    ws.onmessage = function(event) {
        const p = JSON.parse(event.data);
        const body = document.getElementById('recent');
        const row = document.createElement('tr');
        const cells = [
            new Date(p.timestamp).toLocaleTimeString(),
            (p.churn_probability * 100).toFixed(1) + '%',
            p.churn_prediction === 1 ? 'churn' : 'stay',
        ];
        for (const text of cells) {
            const td = document.createElement('td');
            td.textContent = text;
            row.appendChild(td);
        }
        body.insertBefore(row, body.firstChild);
        while (body.children.length > 20) {
            body.removeChild(body.lastChild);
        }
    };
</script>
</body>
</html>
`
