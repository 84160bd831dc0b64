package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// showWaveformChart renders a quick line plot (HTML) of the current filtered
// waveform using go-echarts. This is a debugging-only endpoint (no auth) to
// eyeball the signal without the live view.
func (s *Server) showWaveformChart(w http.ResponseWriter, r *http.Request) {
	waveform := s.pipe.Waveform()
	if len(waveform) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "no completed cycle yet")
		return
	}

	x := make([]string, len(waveform))
	data := make([]opts.LineData, len(waveform))
	for i, v := range waveform {
		x[i] = fmt.Sprintf("%d", i)
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Filtered waveform",
			Subtitle: fmt.Sprintf("rate %.1f bpm at %.1f fps", s.pipe.Rate(), s.pipe.FPS()),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "amplitude"}),
	)
	line.SetXAxis(x).AddSeries("waveform", data,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
