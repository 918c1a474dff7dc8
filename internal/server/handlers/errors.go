package handlers

import (
	"net/http"

	"github.com/iudanet/doccollab/internal/errs"
)

// StatusFor переводит вид ошибки сервиса в HTTP статус
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return http.StatusNotFound
	case errs.ErrForbidden:
		return http.StatusForbidden
	case errs.ErrConflict, errs.ErrInactive:
		return http.StatusConflict
	case errs.ErrInvalid:
		return http.StatusBadRequest
	default:
		// ErrFatal и неклассифицированные ошибки
		return http.StatusInternalServerError
	}
}
