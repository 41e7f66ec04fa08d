package anonymizer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateFormatParse(t *testing.T) {
	tests := []struct {
		format string
		input  string
		want   time.Time
	}{
		{"%Y-%m-%d", "2023-05-10", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"%Y-%m-%d", "2023-5-1", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"%Y-%m-%dT12:00", "2023-05-10T12:00", time.Date(2023, 5, 10, 12, 0, 0, 0, time.UTC)},
		{"Mon %Y-%m-%d", "Mon 2023-05-10", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"%d/%m/%y %H:%M:%S", "10/05/23 14:30:00", time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)},
		{"%Y-%m-%d %H:%M", "2023-05-10   14:30", time.Date(2023, 5, 10, 14, 30, 0, 0, time.UTC)},
		{"%b %e, %Y", "May  1, 2023", time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"%B %d %Y", "december 24 2022", time.Date(2022, 12, 24, 0, 0, 0, 0, time.UTC)},
		{"%I%p %Y-%m-%d", "02pm 2023-05-10", time.Date(2023, 5, 10, 14, 0, 0, 0, time.UTC)},
		{"%Y-%m-%d %z", "2023-05-10 +02:00", time.Date(2023, 5, 9, 22, 0, 0, 0, time.UTC)},
		{"%Y-%m-%d %Z", "2023-05-10 GMT", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"%Y %j", "2023 130", time.Date(2023, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"100%% %Y", "100% 2023", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"%m/%d", "05/10", time.Date(1900, 5, 10, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.format+"|"+tt.input, func(t *testing.T) {
			df, err := compileDateFormat(tt.format)
			require.NoError(t, err)

			got, err := df.parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Unix(), got.Unix())
		})
	}
}

func TestDateFormatRejects(t *testing.T) {
	tests := []struct {
		format string
		input  string
	}{
		{"%Y-%m-%d", "9999-99-99"},
		{"%Y-%m-%d", "2023-02-30"},
		{"%Y-%m-%d", "2023-05-10 extra"},
		{"%Y-%m-%dT12:00", "2023-05-10T13:00"},
		{"%Y-%m-%d %Z", "2023-05-10 EST"},
		{"%Y-%m-%d %H", "2023-05-10 25"},
	}

	for _, tt := range tests {
		t.Run(tt.format+"|"+tt.input, func(t *testing.T) {
			df, err := compileDateFormat(tt.format)
			require.NoError(t, err)

			_, err = df.parse(tt.input)
			assert.Error(t, err)
		})
	}
}

func TestCompileDateFormatErrors(t *testing.T) {
	for _, format := range []string{"%Y-%", "%Y-%Q", "%f"} {
		_, err := compileDateFormat(format)
		assert.Error(t, err, format)
	}
}
