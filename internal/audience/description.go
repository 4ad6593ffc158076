package audience

import (
	"fmt"

	"github.com/osteele/liquid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultDescriptionTemplate is the Liquid template for profile
// descriptions. It sees customer_count, audience_name and
// data_quality_pct.
const DefaultDescriptionTemplate = "Lookalike audience built from {{ customer_count | number }} uploaded customers."

type descriptionRenderer struct {
	tpl *liquid.Template
}

func newDescriptionRenderer(src string) (*descriptionRenderer, error) {
	engine := liquid.NewEngine()

	// Thousands separators: {{ customer_count | number }}
	engine.RegisterFilter("number", func(value interface{}) string {
		p := message.NewPrinter(language.English)
		switch v := value.(type) {
		case int:
			return p.Sprintf("%d", v)
		case int64:
			return p.Sprintf("%d", v)
		case float64:
			return p.Sprintf("%.0f", v)
		default:
			return fmt.Sprintf("%v", value)
		}
	})

	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("parse description template: %w", err)
	}
	return &descriptionRenderer{tpl: tpl}, nil
}

func (d *descriptionRenderer) render(name string, count int, quality float64) (string, error) {
	return d.tpl.RenderString(map[string]interface{}{
		"audience_name":    name,
		"customer_count":   count,
		"data_quality_pct": int(quality * 100),
	})
}

func fallbackDescription(count int) string {
	return fmt.Sprintf("Lookalike audience built from %d uploaded customers.", count)
}
