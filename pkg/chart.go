package pkg

import (
	"bytes"
	"encoding/base64"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const DefaultChartTitle = "Vaccination Rate Per Country"

func newBarChart(dataset VaccinationDataset, title string) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1800px",
			Height:    "700px",
		}),
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "5%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Country"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Vaccinated (%)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	vaccinated := make([]opts.BarData, 0, dataset.Len())
	fullyVaccinated := make([]opts.BarData, 0, dataset.Len())
	for _, row := range dataset.Rows {
		vaccinated = append(vaccinated, opts.BarData{Value: row.Vaccinated})
		fullyVaccinated = append(fullyVaccinated, opts.BarData{Value: row.FullyVaccinated})
	}
	bar.SetXAxis(dataset.Codes()).
		AddSeries("vaccinated", vaccinated).
		AddSeries("fully_vaccinated", fullyVaccinated)
	return bar
}

// RenderChart writes a self-contained HTML bar chart of the dataset.
func RenderChart(w io.Writer, dataset VaccinationDataset, title string) error {
	return newBarChart(dataset, title).Render(w)
}

func ChartDocument(dataset VaccinationDataset, title string) ([]byte, error) {
	var buf bytes.Buffer
	if err := RenderChart(&buf, dataset, title); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DownloadHref embeds a chart document in a data URL.
func DownloadHref(document []byte) string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString(document)
}
