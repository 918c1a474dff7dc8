package lock

import "github.com/iudanet/doccollab/internal/models"

// Compatible reports whether a lock with the requested discipline may be
// granted while a lock with the existing discipline is in effect.
//
//	requested \ existing  EXCLUSIVE  SHARED  REGION            OPTIMISTIC
//	EXCLUSIVE             deny       deny    deny              grant
//	SHARED                deny       grant   grant             grant
//	REGION                deny       grant   grant-if-disjoint grant
//	OPTIMISTIC            grant      grant   grant             grant
//
// Regions are consulted only for a REGION request against a REGION lock.
func Compatible(requested models.LockDiscipline, requestedRegion *models.Region, existing models.LockDiscipline, existingRegion *models.Region) bool {
	if existing == models.DisciplineOptimistic {
		return true
	}

	switch requested {
	case models.DisciplineOptimistic:
		return true
	case models.DisciplineExclusive:
		return false
	case models.DisciplineShared:
		return existing != models.DisciplineExclusive
	case models.DisciplineRegion:
		switch existing {
		case models.DisciplineExclusive:
			return false
		case models.DisciplineShared:
			return true
		case models.DisciplineRegion:
			return !requestedRegion.Overlaps(existingRegion)
		}
	}

	// неизвестная дисциплина: отказываем
	return false
}
