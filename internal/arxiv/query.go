package arxiv

import (
	"fmt"
	"strings"
	"time"
)

// submittedDateLayout is the timestamp form the API accepts in
// submittedDate ranges (YYYYMMDDHHMM, GMT).
const submittedDateLayout = "200601021504"

// CategoryQuery matches a subcategory exactly ("math.AG") and a top-level
// archive with all of its subcategories ("math" -> "cat:math.*").
func CategoryQuery(category string) string {
	if strings.Contains(category, ".") {
		return "cat:" + category
	}
	return "cat:" + category + ".*"
}

// WindowQuery restricts a category to submissions between start and end.
func WindowQuery(category string, start, end time.Time) string {
	return fmt.Sprintf("%s AND submittedDate:[%s TO %s]",
		CategoryQuery(category),
		start.UTC().Format(submittedDateLayout),
		end.UTC().Format(submittedDateLayout))
}
