package audience

import (
	"math"
	"sync"

	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/logger"
)

// Status is the lifecycle state of a profile. This package only creates
// drafts.
type Status string

const StatusDraft Status = "Draft"

const (
	topAges      = 3
	topGenders   = 2
	topLocations = 3
	topListItems = 5

	trackedFields = 7

	minSimilarity = 70
	maxSimilarity = 95

	DefaultSizeFactorMin = 1.5
	DefaultSizeFactorMax = 4.5
)

// CampaignMetrics are filled in once the audience is used in a campaign.
// New profiles carry zeros.
type CampaignMetrics struct {
	Reach       int     `json:"reach"`
	Engagement  float64 `json:"engagement"`
	Conversion  float64 `json:"conversion"`
	Clicks      int     `json:"clicks"`
	Impressions int     `json:"impressions"`
}

// Profile summarizes a customer set as a lookalike audience.
type Profile struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	EstimatedSize   int             `json:"estimated_size"`
	SimilarityScore int             `json:"similarity_score"`
	Status          Status          `json:"status"`
	TopDemographics []string        `json:"top_demographics"`
	TopInterests    []string        `json:"top_interests"`
	TopBehaviors    []string        `json:"top_behaviors"`
	CustomerCount   int             `json:"customer_count"`
	DataQuality     float64         `json:"data_quality"`
	CampaignMetrics CampaignMetrics `json:"campaign_metrics"`
}

// Builder builds profiles. It is safe for concurrent use.
type Builder struct {
	mu        sync.Mutex
	rand      RandomSource
	factorMin float64
	factorMax float64
	template  string
	desc      *descriptionRenderer
	log       *logger.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithRandomSource sets the source of the reach multiplier.
func WithRandomSource(r RandomSource) Option {
	return func(b *Builder) {
		if r != nil {
			b.rand = r
		}
	}
}

// WithSizeFactor sets the range [min, max) of the reach multiplier.
// Invalid ranges are ignored.
func WithSizeFactor(min, max float64) Option {
	return func(b *Builder) {
		if min > 0 && max > min {
			b.factorMin, b.factorMax = min, max
		}
	}
}

// WithDescriptionTemplate replaces the Liquid description template.
func WithDescriptionTemplate(src string) Option {
	return func(b *Builder) {
		if src != "" {
			b.template = src
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// NewBuilder returns a Builder. It fails only when the description
// template does not parse.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		factorMin: DefaultSizeFactorMin,
		factorMax: DefaultSizeFactorMax,
		template:  DefaultDescriptionTemplate,
		log:       logger.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.rand == nil {
		b.rand = defaultRandomSource()
	}
	desc, err := newDescriptionRenderer(b.template)
	if err != nil {
		return nil, err
	}
	b.desc = desc
	b.log = b.log.With("component", "audience.builder")
	return b, nil
}

// BuildProfile summarizes customers under the given audience name. It
// never fails; an empty customer set yields a zero-size profile with the
// minimum similarity score.
func (b *Builder) BuildProfile(customers []datanorm.CustomerRecord, name string) Profile {
	ages, genders, locations := newFrequency(), newFrequency(), newFrequency()
	interests, behaviors := newFrequency(), newFrequency()
	for _, c := range customers {
		ages.add(c.Demographics.Age)
		genders.add(c.Demographics.Gender)
		locations.add(c.Demographics.Location)
		interests.addAll(c.Interests)
		behaviors.addAll(c.Behaviors)
	}

	demographics := make([]string, 0, topAges+topGenders+topLocations)
	demographics = append(demographics, ages.top(topAges)...)
	demographics = append(demographics, genders.top(topGenders)...)
	demographics = append(demographics, locations.top(topLocations)...)

	quality := DataQuality(customers)
	n := len(customers)

	p := Profile{
		Name:            name,
		EstimatedSize:   b.estimateSize(n),
		SimilarityScore: SimilarityScore(quality),
		Status:          StatusDraft,
		TopDemographics: demographics,
		TopInterests:    interests.top(topListItems),
		TopBehaviors:    behaviors.top(topListItems),
		CustomerCount:   n,
		DataQuality:     quality,
	}

	desc, err := b.desc.render(name, n, quality)
	if err != nil {
		b.log.Warn("description template failed, using fallback", "error", err)
		desc = fallbackDescription(n)
	}
	p.Description = desc
	return p
}

func (b *Builder) estimateSize(n int) int {
	if n == 0 {
		return 0
	}
	b.mu.Lock()
	r := b.rand.Float64()
	b.mu.Unlock()
	factor := b.factorMin + r*(b.factorMax-b.factorMin)
	return int(math.Floor(float64(n) * factor))
}

// DataQuality is the share of tracked fields that are filled across all
// customers: identifier, name, age, gender, location, interests and
// behaviors. The identifier always counts as filled.
func DataQuality(customers []datanorm.CustomerRecord) float64 {
	if len(customers) == 0 {
		return 0
	}
	filled := 0
	for _, c := range customers {
		filled++ // identifier
		for _, ok := range []bool{
			c.Name != "",
			c.Demographics.Age != "",
			c.Demographics.Gender != "",
			c.Demographics.Location != "",
			len(c.Interests) > 0,
			len(c.Behaviors) > 0,
		} {
			if ok {
				filled++
			}
		}
	}
	return float64(filled) / float64(trackedFields*len(customers))
}

// SimilarityScore maps a data quality ratio onto [70, 95].
func SimilarityScore(quality float64) int {
	s := int(math.Floor(minSimilarity + quality*(maxSimilarity-minSimilarity)))
	if s < minSimilarity {
		return minSimilarity
	}
	if s > maxSimilarity {
		return maxSimilarity
	}
	return s
}
