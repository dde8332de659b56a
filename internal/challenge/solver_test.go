package challenge

import (
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

const interstitialTemplate = `<!DOCTYPE HTML>
<html>
<head>
<title>Just a moment...</title>
<script type="text/javascript">
  setTimeout(function(){
    var a = document.getElementById('jschl-answer');
    a.value = %s;
    a.value = parseInt(a.value) + t.length;
    document.getElementById('challenge-form').submit();
  }, 5850);
</script>
</head>
<body>
<form id="challenge-form" action="/cdn-cgi/l/chk_jschl" method="get">
  <input type="hidden" name="jschl_vc" value="%s"/>
  <input type="hidden" id="jschl-answer" name="jschl_answer"/>
</form>
</body>
</html>`

func interstitial(expr, token string) []byte {
	return []byte(fmt.Sprintf(interstitialTemplate, expr, token))
}

func TestDetect(t *testing.T) {
	t.Parallel()

	assert.True(t, Detect(interstitial("1+1", "tok")))
	assert.False(t, Detect([]byte("<html><head><title>Facepunch</title></head></html>")))
	assert.False(t, Detect([]byte("<title>Just a moment</title>")))
}

func TestSolveAddsDomainLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		want int64
	}{
		{"2+3*4", 14 + 13},
		{"(2+3)*4", 20 + 13},
		{"10-4-3", 3 + 13},
		{"-5+2", -3 + 13},
		{"17%5*3", 6 + 13},
		{"100/4", 25 + 13},
		{"8+75*41", 3083 + 13},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			sol, err := Solve(interstitial(tt.expr, "c0ffee"), "facepunch.com")
			require.NoError(t, err)
			assert.Equal(t, tt.want, sol.Answer)
			assert.Equal(t, "c0ffee", sol.Token)
		})
	}
}

func TestSolveFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body []byte
	}{
		{"missing expression", []byte(`<title>Just a moment...</title><input type="hidden" name="jschl_vc" value="x"/>`)},
		{"missing token", []byte(`<title>Just a moment...</title><script>a.value = 1+2;</script>`)},
		{"bad expression", interstitial("1 +* 2", "tok")},
		{"identifier", interstitial("t.length", "tok")},
		{"fractional answer", interstitial("7/2", "tok")},
		{"division by zero", interstitial("1/0", "tok")},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Solve(tt.body, "facepunch.com")
			require.Error(t, err)
			assert.ErrorIs(t, err, crawler.ErrChallenge)
		})
	}
}

func TestVerificationURL(t *testing.T) {
	t.Parallel()

	raw := VerificationURL("http://facepunch.com/", Solution{Token: "a b", Answer: 27})
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/cdn-cgi/l/chk_jschl", u.Path)
	assert.Equal(t, "a b", u.Query().Get(TokenParam))
	assert.Equal(t, "27", u.Query().Get(AnswerParam))
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	got, err := Evaluate(" 1.5 * 4 + -(2) ")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got, 1e-9)

	_, err = Evaluate("")
	assert.Error(t, err)
	_, err = Evaluate("1 << 2")
	assert.Error(t, err)
	_, err = Evaluate(`"str"`)
	assert.Error(t, err)
}
