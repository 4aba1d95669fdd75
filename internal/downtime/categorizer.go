package downtime

import "strconv"

// Category — именованный диапазон длительностей простоя [Min, Max] в секундах.
// Порядок в списке авторитетен: при пересечении диапазонов выигрывает первый.
type Category struct {
	Name string
	Min  float64
	Max  float64
}

type BucketKind int

const (
	BucketInRange BucketKind = iota
	BucketBelowRange
	BucketAboveRange
)

// Bucket is the categorization result. Below/above the configured ranges we
// keep a tagged variant with the violated bound instead of a baked-in string;
// Label stringifies only at the reporting boundary.
type Bucket struct {
	Kind  BucketKind
	Name  string
	Bound float64
}

func (b Bucket) Label() string {
	switch b.Kind {
	case BucketBelowRange:
		return "<" + strconv.FormatFloat(b.Bound, 'f', -1, 64)
	case BucketAboveRange:
		return ">" + strconv.FormatFloat(b.Bound, 'f', -1, 64)
	default:
		return b.Name
	}
}

type Categorizer struct {
	categories []Category
}

func NewCategorizer(categories []Category) *Categorizer {
	return &Categorizer{categories: categories}
}

// Categorize is total over all real durations: values outside the configured
// ranges fall into the synthetic below/above buckets, never an error.
func (c *Categorizer) Categorize(seconds float64) Bucket {
	for _, cat := range c.categories {
		if cat.Min <= seconds && seconds <= cat.Max {
			return Bucket{Kind: BucketInRange, Name: cat.Name}
		}
	}

	if len(c.categories) == 0 {
		return Bucket{Kind: BucketInRange, Name: "uncategorized"}
	}
	if seconds < c.categories[0].Min {
		return Bucket{Kind: BucketBelowRange, Bound: c.categories[0].Min}
	}
	return Bucket{Kind: BucketAboveRange, Bound: c.categories[len(c.categories)-1].Max}
}
