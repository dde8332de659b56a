// Package challenge solves the arithmetic interstitial served in front of
// thread pages before access is granted.
package challenge

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

// VerificationPath is where answers are resubmitted.
const VerificationPath = "/cdn-cgi/l/chk_jschl"

// Query parameter names expected by the verification endpoint.
const (
	TokenParam  = "jschl_vc"
	AnswerParam = "jschl_answer"
)

var (
	titleMarker       = regexp.MustCompile(`<title>Just a moment\.\.\.</title>`)
	expressionPattern = regexp.MustCompile(`a\.value\s*=\s*(.+?);`)
	tokenPattern      = regexp.MustCompile(`type="hidden"\s+name="jschl_vc"\s+value="(.+?)"\s*/?>`)
)

// Solution is the answer set resubmitted to the verification endpoint.
type Solution struct {
	Token  string
	Answer int64
}

// Query encodes the solution as verification query parameters.
func (s Solution) Query() url.Values {
	q := url.Values{}
	q.Set(TokenParam, s.Token)
	q.Set(AnswerParam, strconv.FormatInt(s.Answer, 10))
	return q
}

// Detect reports whether body is an interstitial page.
func Detect(body []byte) bool {
	return titleMarker.Match(body)
}

// Solve evaluates the embedded expression, adds the length of domain to it,
// and pairs the result with the hidden form token.
func Solve(body []byte, domain string) (Solution, error) {
	m := expressionPattern.FindSubmatch(body)
	if m == nil {
		return Solution{}, fmt.Errorf("%w: no challenge expression found", crawler.ErrChallenge)
	}
	value, err := Evaluate(string(m[1]))
	if err != nil {
		return Solution{}, fmt.Errorf("%w: %v", crawler.ErrChallenge, err)
	}
	value += float64(len(domain))
	if math.IsNaN(value) || math.IsInf(value, 0) || value != math.Trunc(value) {
		return Solution{}, fmt.Errorf("%w: answer %v is not an integer", crawler.ErrChallenge, value)
	}

	t := tokenPattern.FindSubmatch(body)
	if t == nil {
		return Solution{}, fmt.Errorf("%w: no %s token found", crawler.ErrChallenge, TokenParam)
	}
	return Solution{
		Token:  string(t[1]),
		Answer: int64(value),
	}, nil
}

// VerificationURL builds the resubmission URL under baseURL.
func VerificationURL(baseURL string, s Solution) string {
	return strings.TrimRight(baseURL, "/") + VerificationPath + "?" + s.Query().Encode()
}
