package api

import (
	"fmt"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// renderWaveformPNG serves the current filtered waveform as a PNG for
// reports and quick sharing.
func (s *Server) renderWaveformPNG(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	waveform := s.pipe.Waveform()
	if len(waveform) == 0 {
		http.Error(w, "no completed cycle yet", http.StatusNotFound)
		return
	}

	pts := make(plotter.XYs, len(waveform))
	for i, v := range waveform {
		pts[i].X = float64(i)
		pts[i].Y = v
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Filtered waveform (%.1f bpm)", s.pipe.Rate())
	p.X.Label.Text = "sample"
	p.Y.Label.Text = "amplitude"

	line, err := plotter.NewLine(pts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to build plot: %v", err), http.StatusInternalServerError)
		return
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	writer, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render plot: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		// headers are already gone; nothing to report to the client
		return
	}
}
