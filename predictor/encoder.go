package predictor

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnseenLabel is returned when a categorical value was not present in the
// training data.
var ErrUnseenLabel = errors.New("unseen label")

// UnseenLabelMessage is shown to users when a prediction hits ErrUnseenLabel.
const UnseenLabelMessage = "This car configuration includes unseen labels not present during training."

// Encoder maps a categorical label to its integer code.
type Encoder interface {
	Encode(label string) (int, error)
}

// LabelEncoder codes a label by its position in the sorted class list.
type LabelEncoder struct {
	name    string
	classes []string
}

// NewLabelEncoder sorts classes and rejects duplicates.
func NewLabelEncoder(name string, classes []string) (*LabelEncoder, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("encoder %s: no classes", name)
	}
	sorted := make([]string, len(classes))
	copy(sorted, classes)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("encoder %s: duplicate class %q", name, sorted[i])
		}
	}
	return &LabelEncoder{name: name, classes: sorted}, nil
}

func (e *LabelEncoder) Encode(label string) (int, error) {
	i := sort.SearchStrings(e.classes, label)
	if i < len(e.classes) && e.classes[i] == label {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s=%q", ErrUnseenLabel, e.name, label)
}

// Classes returns the sorted class list.
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}
