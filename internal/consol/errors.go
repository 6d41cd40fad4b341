package consol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks settings that must be fixed before a run can succeed.
	ErrConfiguration = errors.New("consol: configuration error")
	// ErrValidation marks runs rejected before anything is written.
	ErrValidation = errors.New("consol: validation error")
	// ErrInvalidCompany marks company settings violating the percentage invariants.
	ErrInvalidCompany = errors.New("consol: invalid company settings")

	// ErrDiffAccountMissing indicates no consolidation difference account on the holding.
	ErrDiffAccountMissing = fmt.Errorf("%w: consolidation difference account missing", ErrConfiguration)
	// ErrJournalInvalid indicates the run journal is missing or not owned by the holding.
	ErrJournalInvalid = fmt.Errorf("%w: consolidation journal invalid", ErrConfiguration)
	// ErrHoldingInvalid indicates the target company is not a consolidation company.
	ErrHoldingInvalid = fmt.Errorf("%w: holding must be a consolidation company", ErrValidation)
	// ErrInvalidParams indicates malformed run parameters.
	ErrInvalidParams = fmt.Errorf("%w: invalid run parameters", ErrValidation)
	// ErrMappingInvalid indicates defective subsidiary account mappings.
	ErrMappingInvalid = fmt.Errorf("%w: invalid accounts mappings, please run the consolidation checks", ErrValidation)
	// ErrNothingGenerated indicates no subsidiary produced any line.
	ErrNothingGenerated = fmt.Errorf("%w: could not generate any consolidation entries", ErrValidation)

	// ErrCompanyNotFound indicates an unknown company.
	ErrCompanyNotFound = errors.New("consol: company not found")
	// ErrAccountNotFound indicates an unknown account.
	ErrAccountNotFound = errors.New("consol: account not found")
	// ErrJournalNotFound indicates an unknown journal.
	ErrJournalNotFound = errors.New("consol: journal not found")
)

// MappingError carries the defect report that blocked a run.
type MappingError struct {
	Report MappingReport
}

func (e *MappingError) Error() string {
	names := make([]string, 0, len(e.Report.Subsidiaries))
	for _, sub := range e.Report.Subsidiaries {
		names = append(names, fmt.Sprintf("%s (%d accounts)", sub.Company.Name, len(sub.Accounts)))
	}
	return fmt.Sprintf("%s: %s", ErrMappingInvalid.Error(), strings.Join(names, ", "))
}

// Unwrap exposes ErrMappingInvalid to errors.Is.
func (e *MappingError) Unwrap() error {
	return ErrMappingInvalid
}
