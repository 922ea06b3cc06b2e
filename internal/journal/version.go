package journal

import (
	"fmt"
	"strconv"
	"strings"

	"reach/core/internal/reacherr"
)

// CurrentSchemaVersion is the schema_version this process stamps into
// every event payload (schemaVersion in event.go), exported for callers
// outside this package; checkSchemaCompat compares against its major
// component.
const CurrentSchemaVersion = schemaVersion

// checkSchemaCompat verifies an existing event's stamped schema_version
// shares this process's major version, folding in the teacher's
// internal/spec major-version compatibility check (spec/version.go)
// rather than keeping it as a standalone package — the only thing it
// ever checked was this journal's own schema drift.
func checkSchemaCompat(payload map[string]any) error {
	raw, ok := payload["schema_version"]
	if !ok {
		// Events written before schema_version was stamped (or by a
		// producer that chose not to) are accepted: the field was added
		// for forward compatibility, not retroactively required.
		return nil
	}
	version, ok := raw.(string)
	if !ok || strings.TrimSpace(version) == "" {
		return reacherr.New(reacherr.CodeInvalidEvent, fmt.Sprintf("schema_version must be a non-empty string, got %v", raw))
	}

	expected, err := majorVersion(CurrentSchemaVersion)
	if err != nil {
		return reacherr.Wrap(reacherr.CodeInvalidEvent, "journal's own schema version is invalid", err)
	}
	actual, err := majorVersion(version)
	if err != nil {
		return reacherr.New(reacherr.CodeInvalidEvent, fmt.Sprintf("event schema_version %q is invalid", version))
	}
	if actual != expected {
		return reacherr.New(reacherr.CodeInvalidEvent,
			fmt.Sprintf("incompatible schema_version %q: this journal writes major %d", version, expected))
	}
	return nil
}

func majorVersion(version string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(version), ".", 2)
	if len(parts) == 0 || parts[0] == "" {
		return 0, fmt.Errorf("%q has no major component", version)
	}
	m, err := strconv.Atoi(parts[0])
	if err != nil || m < 0 {
		return 0, fmt.Errorf("%q has an invalid major component", version)
	}
	return m, nil
}
