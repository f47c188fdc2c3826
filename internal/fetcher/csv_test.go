package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stream(t *testing.T, ctx context.Context, input string, opts CSVOptions) ([][]string, error) {
	t.Helper()
	rowCh, errCh := StreamCSV(ctx, strings.NewReader(input), opts)
	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamCSV_RaggedRows(t *testing.T) {
	input := "1,AIIMS NEW DELHI,MBBS\n2,PGIMER\n3,JIPMER,MBBS,AIQ\n"
	rows, err := stream(t, context.Background(), input, CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"1", "AIIMS NEW DELHI", "MBBS"},
		{"2", "PGIMER"},
		{"3", "JIPMER", "MBBS", "AIQ"},
	}, rows)
}

func TestStreamCSV_HeaderAndBOM(t *testing.T) {
	headerCh := make(chan []string, 1)
	input := "\ufeffRank,College\n12,KMC\n"
	rows, err := stream(t, context.Background(), input, CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rank", "College"}, <-headerCh)
	assert.Equal(t, [][]string{{"12", "KMC"}}, rows)
}

func TestStreamCSV_HeaderWithoutChannel(t *testing.T) {
	rows, err := stream(t, context.Background(), "a,b\n1,2\n", CSVOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2"}}, rows)
}

func TestStreamCSV_TabDelimitedWithCommas(t *testing.T) {
	input := "KASTURBA MEDICAL COLLEGE, MANIPAL\tKARNATAKA\n"
	rows, err := stream(t, context.Background(), input, CSVOptions{Delimiter: '\t'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"KASTURBA MEDICAL COLLEGE, MANIPAL", "KARNATAKA"}}, rows)
}

func TestStreamCSV_TrimAndSkipBlank(t *testing.T) {
	input := " 1 ,  S.K.S. COLLEGE  \n , \n2,BDS\n"
	rows, err := stream(t, context.Background(), input, CSVOptions{
		TrimSpace: true,
		SkipBlank: true,
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "S.K.S. COLLEGE"}, {"2", "BDS"}}, rows)
}

func TestStreamCSV_LazyQuotes(t *testing.T) {
	input := `1,DR. "RML" HOSPITAL` + "\n"

	_, err := stream(t, context.Background(), input, CSVOptions{})
	assert.Error(t, err)

	rows, err := stream(t, context.Background(), input, CSVOptions{LazyQuotes: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", `DR. "RML" HOSPITAL`}}, rows)
}

func TestStreamCSV_Comment(t *testing.T) {
	input := "# round 1 export\n1,AIIMS\n"
	rows, err := stream(t, context.Background(), input, CSVOptions{Comment: '#'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "AIIMS"}}, rows)
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b strings.Builder
	for range 500 {
		b.WriteString("1,AIIMS\n")
	}
	_, err := stream(t, ctx, b.String(), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV_Empty(t *testing.T) {
	rows, err := stream(t, context.Background(), "", CSVOptions{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
