package executor

import (
	"regexp"
	"strings"

	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/logger"
	"github.com/zhangyongjun10/testhub-platform-sub000/pkg/vars"
)

// EvalCondition evaluates `left operator right`. Operands are compared by
// their string form except for the ordering operators, which coerce both
// sides to numbers and yield false when either side is not numeric.
// Unknown operators yield false with a warning. It never fails.
//
// contains checks that left contains right; in checks that right contains left.
func EvalCondition(left interface{}, operator string, right interface{}) bool {
	op := strings.ToLower(strings.TrimSpace(operator))
	l, r := vars.ToString(left), vars.ToString(right)

	switch op {
	case "==":
		return l == r
	case "!=":
		return l != r

	case ">", ">=", "<", "<=":
		lv, lerr := vars.ToFloat(left)
		rv, rerr := vars.ToFloat(right)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case ">":
			return lv > rv
		case ">=":
			return lv >= rv
		case "<":
			return lv < rv
		default:
			return lv <= rv
		}

	case "in":
		return strings.Contains(r, l)
	case "not in", "not_in":
		return !strings.Contains(r, l)
	case "contains":
		return strings.Contains(l, r)
	case "not_contains", "notcontains":
		return !strings.Contains(l, r)

	case "regex", "match":
		re, err := regexp.Compile(r)
		if err != nil {
			return false
		}
		return re.MatchString(l)

	case "truthy", "exists":
		return vars.Truthy(left)
	case "falsy", "not_exists":
		return !vars.Truthy(left)

	case "startswith":
		return strings.HasPrefix(l, r)
	case "endswith":
		return strings.HasSuffix(l, r)
	}

	logger.Warn("unknown condition operator %q, treating as false", operator)
	return false
}
