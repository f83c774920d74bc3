package responder

import (
	"math"
	"strconv"
	"strings"
)

// evalExpr evaluates an arithmetic expression admitting only numeric
// literals and the four operators. Anything else, overflow, or division by
// zero yields ok=false; the expression is never handed to an interpreter.
func evalExpr(expr string) (string, bool) {
	nums, ops, ok := tokenize(expr)
	if !ok {
		return "", false
	}

	// First pass: multiplication and division, left to right.
	for i := 0; i < len(ops); {
		if ops[i] != '*' && ops[i] != '/' {
			i++
			continue
		}
		var v float64
		if ops[i] == '*' {
			v = nums[i] * nums[i+1]
		} else {
			if nums[i+1] == 0 {
				return "", false
			}
			v = nums[i] / nums[i+1]
		}
		nums[i] = v
		nums = append(nums[:i+1], nums[i+2:]...)
		ops = append(ops[:i], ops[i+1:]...)
	}

	// Second pass: addition and subtraction.
	result := nums[0]
	for i, op := range ops {
		if op == '+' {
			result += nums[i+1]
		} else {
			result -= nums[i+1]
		}
	}

	if math.IsInf(result, 0) || math.IsNaN(result) || math.Abs(result) >= 1e15 {
		return "", false
	}
	return formatNumber(result), true
}

// tokenize splits the expression into alternating numbers and operators.
// Only digits, the decimal point, the four operators, and whitespace are
// admitted.
func tokenize(expr string) (nums []float64, ops []byte, ok bool) {
	expr = strings.ReplaceAll(expr, " ", "")
	start := 0
	for i := 0; i <= len(expr); i++ {
		if i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
			continue
		}
		if i == start {
			return nil, nil, false
		}
		n, err := strconv.ParseFloat(expr[start:i], 64)
		if err != nil {
			return nil, nil, false
		}
		nums = append(nums, n)
		if i == len(expr) {
			break
		}
		switch expr[i] {
		case '+', '-', '*', '/':
			ops = append(ops, expr[i])
		default:
			return nil, nil, false
		}
		start = i + 1
	}
	if len(nums) != len(ops)+1 || len(ops) == 0 {
		return nil, nil, false
	}
	return nums, ops, true
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
