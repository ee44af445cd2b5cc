package scanner

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		valid   bool
		errors  []string
		warning string
	}{
		{
			name:  "indicator scanner",
			code:  "fast = SMA(close, 5)\nsignal = fast[-1] != None and close[-1] > fast[-1]\n",
			valid: true,
		},
		{
			name:  "allowed load",
			code:  "load(\"math\", \"sqrt\")\nsignal = sqrt(bars) > 2\n",
			valid: true,
		},
		{
			name:  "module attribute",
			code:  "signal = talib.RSI(close, 14)[-1] < 30 and math.floor(1.5) == 1\n",
			valid: true,
		},
		{
			name:  "result slots read before assignment",
			code:  "if not signal:\n    signal = True\nmetrics[\"n\"] = len(close)\n",
			valid: true,
		},
		{
			name:   "denied load",
			code:   "load(\"os\", \"path\")\nsignal = True\n",
			errors: []string{"Import of 'os' is not allowed"},
		},
		{
			name:   "eval",
			code:   "signal = eval(\"1\")\n",
			errors: []string{"Use of 'eval' is not allowed"},
		},
		{
			name:   "getattr",
			code:   "signal = getattr(close, \"append\")\n",
			errors: []string{"Use of 'getattr' is not allowed"},
		},
		{
			name:   "open",
			code:   "f = open(\"/etc/passwd\")\nsignal = True\n",
			errors: []string{"File operations are not allowed"},
		},
		{
			name:   "dunder import",
			code:   "os = __import__(\"os\")\nsignal = True\n",
			errors: []string{"Use of 'os' is not allowed", "Use of '__import__' is not allowed"},
		},
		{
			name:   "dunder attribute",
			code:   "c = close.__class__\nsignal = True\n",
			errors: []string{"Access to '__class__' is not allowed"},
		},
		{
			name:    "missing signal",
			code:    "x = 1\n",
			valid:   true,
			warning: warnNoSignal,
		},
		{
			name:    "unbounded loop",
			code:    "i = 0\nwhile True:\n    i += 1\nsignal = False\n",
			valid:   true,
			warning: warnInfiniteLoop,
		},
		{
			name:   "denied name inside loop",
			code:   "i = 0\nwhile i < 3:\n    i += 1\n    exec(\"x\")\nsignal = False\n",
			errors: []string{"Use of 'exec' is not allowed"},
		},
		{
			name:  "signal assigned inside loop",
			code:  "i = 0\nwhile i < 3:\n    i += 1\n    signal = i > 2\n",
			valid: true,
		},
		{
			name:    "unbounded loop in function",
			code:    "def spin():\n    while 1:\n        pass\nsignal = False\n",
			valid:   true,
			warning: warnInfiniteLoop,
		},
		{
			name:  "loop with break",
			code:  "i = 0\nwhile True:\n    i += 1\n    if i > 3:\n        break\nsignal = False\n",
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tt.code)
			assert.Equal(t, tt.valid, res.Valid, "errors: %v", res.Errors)
			if tt.errors != nil {
				assert.Equal(t, tt.errors, res.Errors)
			}
			if tt.valid {
				assert.Empty(t, res.Errors)
			}
			if tt.warning != "" {
				assert.Contains(t, res.Warnings, tt.warning)
			}
			assert.NotNil(t, res.Errors)
			assert.NotNil(t, res.Warnings)
		})
	}
}

func TestValidateSyntaxError(t *testing.T) {
	res := Validate("signal = (\n")

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "Syntax error:"), res.Errors[0])
}

func TestValidateUndefinedName(t *testing.T) {
	res := Validate("signal = undefined_thing > 1\n")

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "undefined: undefined_thing")
}

func TestValidateKeywordNamesAreNotReferences(t *testing.T) {
	// "type" is denied as a name but fine as a keyword or dict key.
	res := Validate("m = MACD(close, fastperiod = 12)\nsignal = True\nmetrics = {\"type\": 1}\n")
	assert.True(t, res.Valid, "errors: %v", res.Errors)
}

func TestValidationResultErr(t *testing.T) {
	assert.NoError(t, Validate("signal = True\n").Err())

	err := Validate("signal = eval(\"1\")\n").Err()
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"Use of 'eval' is not allowed"}, verr.Errors)
	assert.Equal(t, "scanner validation failed: Use of 'eval' is not allowed", err.Error())
}

func TestCompile(t *testing.T) {
	prog, err := Compile("signal = True\n")
	require.NoError(t, err)
	assert.NotNil(t, prog)

	_, err = Compile("signal = (\n")
	var cerr *CompilationError
	require.True(t, errors.As(err, &cerr))

	_, err = Compile("signal = missing_name\n")
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, err.Error(), "missing_name")
}
