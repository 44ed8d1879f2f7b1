package gemini_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	gemini "github.com/knowfox/gemwire"
)

func TestClassify_Table(t *testing.T) {
	tests := []struct {
		code int
		want gemini.Category
	}{
		{10, gemini.CategoryInput},
		{11, gemini.CategoryInput},
		{20, gemini.CategorySuccess},
		{29, gemini.CategorySuccess},
		{30, gemini.CategoryRedirect},
		{31, gemini.CategoryRedirect},
		{44, gemini.CategoryTemporaryFailure},
		{51, gemini.CategoryPermanentFailure},
		{59, gemini.CategoryPermanentFailure},
		{60, gemini.CategoryCertificateRequired},
		{69, gemini.CategoryCertificateRequired},
	}
	for _, tc := range tests {
		got, err := gemini.Classify(tc.code)
		require.NoError(t, err, "code %d", tc.code)
		require.Equal(t, tc.want, got, "code %d", tc.code)
	}
}

func TestClassify_InvalidLeadingDigit(t *testing.T) {
	for _, code := range []int{0, 5, 9, 70, 75, 80, 99, 100, -20} {
		got, err := gemini.Classify(code)
		require.ErrorIs(t, err, gemini.ErrInvalidStatus, "code %d", code)
		require.Equal(t, gemini.CategoryUnknown, got)
	}
}

func TestClassify_LeadingDigitDecides(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		code := rapid.IntRange(0, 99).Draw(r, "code")
		cat, err := gemini.Classify(code)
		lead := code / 10
		if lead >= 1 && lead <= 6 {
			if err != nil {
				r.Fatalf("code %d rejected: %v", code, err)
			}
			if int(cat) != lead {
				r.Fatalf("code %d classified as %v", code, cat)
			}
		} else if err == nil {
			r.Fatalf("code %d accepted", code)
		}
	})
}

func TestStatusCode_UnknownButValid(t *testing.T) {
	s, err := gemini.ParseStatus(29)
	require.NoError(t, err)
	require.True(t, s.IsSuccess())
	require.True(t, s.Valid())
	require.False(t, s.Known())
	require.Equal(t, "success", s.Text())

	s, err = gemini.ParseStatus(20)
	require.NoError(t, err)
	require.True(t, s.Known())
	require.Equal(t, "Success", s.Text())
}

func TestStatusCode_IsSuccess(t *testing.T) {
	require.True(t, gemini.StatusSuccess.IsSuccess())
	require.False(t, gemini.StatusNotFound.IsSuccess())
	require.False(t, gemini.StatusPlainInput.IsSuccess())
	require.False(t, gemini.StatusCode(2).IsSuccess())
}

func TestSimplifyStatus(t *testing.T) {
	require.Equal(t, gemini.StatusUnspecified, gemini.SimplifyStatus(gemini.StatusSlowDown))
	require.Equal(t, gemini.StatusSuccess, gemini.SimplifyStatus(gemini.StatusSuccess))
}

func TestCategory_String(t *testing.T) {
	require.Equal(t, "redirect", gemini.CategoryRedirect.String())
	require.Equal(t, "category(42)", gemini.Category(42).String())
}
