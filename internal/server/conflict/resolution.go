package conflict

import (
	"fmt"
	"slices"

	"github.com/iudanet/doccollab/internal/models"
)

// Confidence of each proposal strategy
const (
	ConfidenceMerge          = 0.8
	ConfidenceLastWriterWins = 0.6
	ConfidenceUserDecision   = 0.3
)

// ProposeResolution выбирает стратегию разрешения конфликта. Порядок правил фиксирован:
// автоматически разрешимый конфликт низкой серьезности сливается по времени отправки,
// конфликт ровно двух операций разрешается в пользу последней,
// все остальное требует решения пользователя.
// ops операции конфликта; операции, не входящие в conflict.OperationIDs, игнорируются.
func ProposeResolution(c *models.Conflict, ops []*models.EditOperation) *models.ConflictResolution {
	involved := make([]*models.EditOperation, 0, len(c.OperationIDs))
	for _, op := range ops {
		if op != nil && slices.Contains(c.OperationIDs, op.ID) {
			involved = append(involved, op)
		}
	}
	slices.SortFunc(involved, func(a, b *models.EditOperation) int {
		switch {
		case a.SubmittedBefore(b):
			return -1
		case b.SubmittedBefore(a):
			return 1
		default:
			return 0
		}
	})
	known := len(involved) == len(c.OperationIDs)

	switch {
	case c.AutoResolvable && c.Severity == models.SeverityLow && known:
		ordered := make([]string, 0, len(involved))
		for _, op := range involved {
			ordered = append(ordered, op.ID)
		}
		return &models.ConflictResolution{
			ConflictID:        c.ID,
			Strategy:          models.ResolutionMergeChanges,
			OrderedOperations: ordered,
			Confidence:        ConfidenceMerge,
			RequiresUserInput: false,
			Description:       fmt.Sprintf("apply %d operations in submission order", len(ordered)),
		}

	case len(c.OperationIDs) == 2 && known:
		winner := involved[len(involved)-1]
		return &models.ConflictResolution{
			ConflictID:         c.ID,
			Strategy:           models.ResolutionLastWriterWins,
			WinningOperationID: winner.ID,
			Confidence:         ConfidenceLastWriterWins,
			RequiresUserInput:  c.Severity == models.SeverityCritical,
			Description: fmt.Sprintf("keep operation %s by %s submitted at %s",
				winner.ID, winner.ActorID, winner.SubmittedAt.UTC().Format("15:04:05.000")),
		}

	default:
		return &models.ConflictResolution{
			ConflictID:        c.ID,
			Strategy:          models.ResolutionUserDecision,
			Confidence:        ConfidenceUserDecision,
			RequiresUserInput: true,
			Description:       fmt.Sprintf("%d operations need a manual decision", len(c.OperationIDs)),
		}
	}
}
