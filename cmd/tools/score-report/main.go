// score-report renders an HTML report of stored clip scores for one
// video: per-axis bars, the combined ranking, and a gate scatter of
// text vs vision confidence. Useful for tuning thresholds against a
// corpus without re-running any inference.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/clipforge-media/clipforge/internal/clip"
	"github.com/clipforge-media/clipforge/internal/store"
)

var (
	dbPath  = flag.String("db-path", "clipforge.db", "Path to database file")
	videoID = flag.String("video", "", "Video ID to report on")
	outPath = flag.String("out", "score-report.html", "Output HTML file")
)

func main() {
	flag.Parse()
	if *videoID == "" {
		fmt.Fprintln(os.Stderr, "Usage: score-report -video <video_id> [-db-path clipforge.db] [-out score-report.html]")
		os.Exit(1)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		fatalf("open database: %v", err)
	}
	defer db.Close()

	video, err := store.NewVideoStore(db).Get(*videoID)
	if err != nil {
		fatalf("%v", err)
	}
	candidates, err := store.NewCandidateStore(db).ListByVideo(video.ID)
	if err != nil {
		fatalf("list candidates: %v", err)
	}
	records, err := store.NewScoreStore(db).MapByVideo(video.ID)
	if err != nil {
		fatalf("load scores: %v", err)
	}
	if len(candidates) == 0 {
		fatalf("video %s has no candidates", video.ID)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return combined(records, candidates[i].ClipID) > combined(records, candidates[j].ClipID)
	})

	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Clip scores: %s", video.Title))
	page.AddCharts(
		combinedBar(candidates, records),
		axisBar(candidates, records),
		gateScatter(candidates, records),
	)

	f, err := os.Create(*outPath)
	if err != nil {
		fatalf("create %s: %v", *outPath, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		fatalf("render report: %v", err)
	}
	fmt.Printf("Wrote %s (%d clips)\n", *outPath, len(candidates))
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", v...)
	os.Exit(1)
}

func combined(records map[string]*clip.ScoreRecord, clipID string) float64 {
	if rec := records[clipID]; rec != nil {
		return rec.Combined
	}
	return 0
}

func clipLabels(candidates []clip.Candidate) []string {
	labels := make([]string, len(candidates))
	for i, c := range candidates {
		labels[i] = fmt.Sprintf("%s [%.0fs-%.0fs]", shortID(c.ClipID), c.Start, c.End)
	}
	return labels
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func combinedBar(candidates []clip.Candidate, records map[string]*clip.ScoreRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Combined score", Subtitle: "weighted over present axes"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)

	data := make([]opts.BarData, len(candidates))
	for i, c := range candidates {
		data[i] = opts.BarData{Value: combined(records, c.ClipID)}
	}
	bar.SetXAxis(clipLabels(candidates)).AddSeries("combined", data)
	return bar
}

func axisBar(candidates []clip.Candidate, records map[string]*clip.ScoreRecord) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Per-axis scores", Subtitle: "missing bars are absent axes, not zeros"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)

	axes := []struct {
		name string
		get  func(*clip.ScoreRecord) *float64
	}{
		{"text", func(r *clip.ScoreRecord) *float64 { return r.Text }},
		{"vision", func(r *clip.ScoreRecord) *float64 { return r.VisionLocal }},
		{"audio emphasis", func(r *clip.ScoreRecord) *float64 { return r.AudioEmphasis }},
		{"facial emphasis", func(r *clip.ScoreRecord) *float64 { return r.FacialEmphasis }},
		{"cloud", func(r *clip.ScoreRecord) *float64 { return r.VisionCloud }},
	}

	bar.SetXAxis(clipLabels(candidates))
	for _, axis := range axes {
		data := make([]opts.BarData, len(candidates))
		for i, c := range candidates {
			rec := records[c.ClipID]
			if rec == nil || axis.get(rec) == nil {
				data[i] = opts.BarData{Value: nil}
				continue
			}
			data[i] = opts.BarData{Value: *axis.get(rec)}
		}
		bar.AddSeries(axis.name, data)
	}
	return bar
}

func gateScatter(candidates []clip.Candidate, records map[string]*clip.ScoreRecord) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Gate inputs", Subtitle: "text vs vision confidence, sized by combined score"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 1, Name: "text"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "vision"}),
	)

	var escalated, direct []opts.ScatterData
	for _, c := range candidates {
		rec := records[c.ClipID]
		if rec == nil || rec.Text == nil || rec.VisionLocal == nil {
			continue
		}
		point := opts.ScatterData{Value: []interface{}{*rec.Text, *rec.VisionLocal, rec.Combined}}
		if rec.Escalated {
			escalated = append(escalated, point)
		} else {
			direct = append(direct, point)
		}
	}
	scatter.AddSeries("local only", direct, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	scatter.AddSeries("escalated", escalated, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	return scatter
}
