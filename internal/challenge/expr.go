package challenge

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"math"
	"strconv"
	"strings"
)

var errDivideByZero = errors.New("division by zero")

// Evaluate computes a numeric expression made of literals, parentheses,
// unary signs and the binary operators + - * / %, with the usual precedence.
// Arithmetic is floating point.
func Evaluate(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, errors.New("empty expression")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, fmt.Errorf("parse expression %q: %w", expr, err)
	}
	return eval(node)
}

func eval(node ast.Expr) (float64, error) {
	switch n := node.(type) {
	case *ast.BasicLit:
		return literal(n)
	case *ast.ParenExpr:
		return eval(n.X)
	case *ast.UnaryExpr:
		x, err := eval(n.X)
		if err != nil {
			return 0, err
		}
		switch n.Op {
		case token.ADD:
			return x, nil
		case token.SUB:
			return -x, nil
		default:
			return 0, fmt.Errorf("unsupported unary operator %s", n.Op)
		}
	case *ast.BinaryExpr:
		return binary(n)
	default:
		return 0, fmt.Errorf("unsupported expression %T", node)
	}
}

func literal(lit *ast.BasicLit) (float64, error) {
	switch lit.Kind {
	case token.INT:
		v, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse literal %s: %w", lit.Value, err)
		}
		return float64(v), nil
	case token.FLOAT:
		v, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return 0, fmt.Errorf("parse literal %s: %w", lit.Value, err)
		}
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported literal %s", lit.Value)
	}
}

func binary(n *ast.BinaryExpr) (float64, error) {
	x, err := eval(n.X)
	if err != nil {
		return 0, err
	}
	y, err := eval(n.Y)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case token.ADD:
		return x + y, nil
	case token.SUB:
		return x - y, nil
	case token.MUL:
		return x * y, nil
	case token.QUO:
		if y == 0 {
			return 0, errDivideByZero
		}
		return x / y, nil
	case token.REM:
		if y == 0 {
			return 0, errDivideByZero
		}
		return math.Mod(x, y), nil
	default:
		return 0, fmt.Errorf("unsupported operator %s", n.Op)
	}
}
