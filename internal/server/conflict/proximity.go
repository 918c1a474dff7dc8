package conflict

import (
	"math"

	"github.com/iudanet/doccollab/internal/models"
)

// Default heuristic parameters
const (
	DefaultLineWeight = 1000
	DefaultThreshold  = 100
)

// Proximity классификация пары близких операций
type Proximity struct {
	Kind      models.ConflictKind
	Severity  models.Severity
	Distance  int
	LineDelta int
}

// ProximityStrategy решает, конфликтуют ли две операции.
// Реализация обязана быть симметричной: Classify(a, b) == Classify(b, a).
type ProximityStrategy interface {
	Classify(a, b *models.EditOperation) (Proximity, bool)
}

// DistanceHeuristic сворачивает позицию в одно число line*LineWeight+character
// и считает операции конфликтующими, если расстояние не больше Threshold.
// Для длинных строк и правок на соседних строках оценка грубая.
type DistanceHeuristic struct {
	LineWeight int
	Threshold  int
}

// NewDistanceHeuristic создает эвристику; нулевые параметры заменяются значениями по умолчанию
func NewDistanceHeuristic(lineWeight, threshold int) DistanceHeuristic {
	if lineWeight <= 0 {
		lineWeight = DefaultLineWeight
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return DistanceHeuristic{LineWeight: lineWeight, Threshold: threshold}
}

// Classify реализует ProximityStrategy
func (h DistanceHeuristic) Classify(a, b *models.EditOperation) (Proximity, bool) {
	pa, okA := h.offset(a.Position)
	pb, okB := h.offset(b.Position)
	if !okA || !okB {
		return Proximity{}, false
	}

	distance := abs(pa - pb)
	if distance > h.Threshold {
		return Proximity{}, false
	}

	p := Proximity{
		Kind:      models.ConflictOverlappingRegion,
		Distance:  distance,
		LineDelta: abs(a.Position.Line - b.Position.Line),
	}
	switch {
	case p.LineDelta == 0:
		p.Kind = models.ConflictConcurrentEdit
		p.Severity = models.SeverityHigh
	case p.LineDelta <= 2:
		p.Severity = models.SeverityMedium
	default:
		p.Severity = models.SeverityLow
	}

	return p, true
}

// offset сворачивает позицию в line*LineWeight+character.
// false для отрицательных координат и для позиций, не помещающихся в int:
// такие операции не сравниваются.
func (h DistanceHeuristic) offset(p models.Position) (int, bool) {
	if p.Line < 0 || p.Character < 0 || h.LineWeight <= 0 {
		return 0, false
	}
	if p.Line > (math.MaxInt-p.Character)/h.LineWeight {
		return 0, false
	}
	return p.Line*h.LineWeight + p.Character, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
