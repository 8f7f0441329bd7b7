package tabular

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustFrame(t *testing.T, columns []string, rows ...[]string) *Frame {
	t.Helper()
	f := New(columns...)
	for _, row := range rows {
		if err := f.Append(row...); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	return f
}

func allRows(f *Frame) [][]string {
	out := make([][]string, f.Len())
	for i := range out {
		out[i] = f.Values(i)
	}
	return out
}

func TestReadCSVDecodesLatin1AndSkipsPreamble(t *testing.T) {
	raw := []byte("Planning export\r\ngenerated 2024\r\nCase Reference,Property Address\r\n24/00001,\"Caf\xe9 Row, Douglas, IM1 1AA\"\r\n")
	f, err := ReadCSV(bytes.NewReader(raw), ReadOptions{Encoding: "iso-8859-1", SkipLines: 2})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff([]string{"Case Reference", "Property Address"}, f.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if got := f.Get(0, "Property Address"); got != "Café Row, Douglas, IM1 1AA" {
		t.Fatalf("unexpected decoded value %q", got)
	}
}

func TestReadCSVPadsShortRowsAndMangleDuplicates(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("\ufeffA,B,A\n1\n2,3,4,5\n"), ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B", "A.1"}, f.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	want := [][]string{{"1", "", ""}, {"2", "3", "4"}}
	if diff := cmp.Diff(want, allRows(f)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestReadCSVRejectsUnknownEncoding(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("a\n"), ReadOptions{Encoding: "ebcdic"}); err == nil {
		t.Fatal("expected encoding error")
	}
}

func TestWriteCSVQuotesEveryField(t *testing.T) {
	f := mustFrame(t, []string{"Name", "Note"}, []string{"Manx \"Cat\" Ltd", ""}, []string{"Plain", "a,b"})
	var buf bytes.Buffer
	if err := WriteCSV(&buf, f); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "\"Name\",\"Note\"\n\"Manx \"\"Cat\"\" Ltd\",\"\"\n\"Plain\",\"a,b\"\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv:\n%s", buf.String())
	}

	back, err := ReadCSV(&buf, ReadOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if diff := cmp.Diff(allRows(f), allRows(back)); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestAppendCSVFileWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "term.csv")
	page := mustFrame(t, []string{"Name", "Number"}, []string{"A", "1"})
	if err := AppendCSVFile(path, page); err != nil {
		t.Fatal(err)
	}
	if err := AppendCSVFile(path, page); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if got := strings.Count(string(data), "\"Name\""); got != 1 {
		t.Fatalf("expected one header, got %d in %q", got, data)
	}
	f, err := ReadCSVFile(path, ReadOptions{})
	if err != nil || f.Len() != 2 {
		t.Fatalf("expected 2 rows, got %v err=%v", f.Len(), err)
	}
}

func TestDedupeKeepFirstAndLast(t *testing.T) {
	f := mustFrame(t, []string{"Number", "Registry Type", "Name"},
		[]string{"1", "Company", "Old"},
		[]string{"2", "Company", "Two"},
		[]string{"1", "Company", "New"},
		[]string{"1", "Foundation", "Other"},
	)
	last := f.Dedupe(KeepLast, "Number", "Registry Type")
	wantLast := [][]string{{"2", "Company", "Two"}, {"1", "Company", "New"}, {"1", "Foundation", "Other"}}
	if diff := cmp.Diff(wantLast, allRows(last)); diff != "" {
		t.Fatalf("keep last (-want +got):\n%s", diff)
	}
	first := f.Dedupe(KeepFirst, "Number", "Registry Type")
	wantFirst := [][]string{{"1", "Company", "Old"}, {"2", "Company", "Two"}, {"1", "Foundation", "Other"}}
	if diff := cmp.Diff(wantFirst, allRows(first)); diff != "" {
		t.Fatalf("keep first (-want +got):\n%s", diff)
	}
	if f.Len() != 4 {
		t.Fatal("dedupe must not mutate the source frame")
	}
}

func TestDedupeAllColumns(t *testing.T) {
	f := mustFrame(t, []string{"A", "B"}, []string{"x", "1"}, []string{"x", "1"}, []string{"x", "2"})
	if got := f.Dedupe(KeepFirst).Len(); got != 2 {
		t.Fatalf("expected 2 rows, got %d", got)
	}
}

func TestDedupeOnMissingColumnKeepsEveryRow(t *testing.T) {
	f := mustFrame(t, []string{"Number", "Name"}, []string{"1", "A"}, []string{"2", "B"}, []string{"1", "C"})
	got := f.Dedupe(KeepLast, "Number", "Typo")
	if diff := cmp.Diff(allRows(f), allRows(got)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestSortByIsStable(t *testing.T) {
	f := mustFrame(t, []string{"Street", "Town", "Seq"},
		[]string{"Main Road", "Ramsey", "1"},
		[]string{"Athol Street", "Douglas", "2"},
		[]string{"Main Road", "Douglas", "3"},
		[]string{"Athol Street", "Douglas", "4"},
	)
	f.SortBy("Street", "Town")
	if diff := cmp.Diff([]string{"2", "4", "3", "1"}, f.Column("Seq")); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestConcatUnionsColumns(t *testing.T) {
	a := mustFrame(t, []string{"Name", "Number"}, []string{"A", "1"})
	b := mustFrame(t, []string{"Number", "Status"}, []string{"2", "Live"})
	out := Concat(a, nil, b)
	if diff := cmp.Diff([]string{"Name", "Number", "Status"}, out.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	want := [][]string{{"A", "1", ""}, {"", "2", "Live"}}
	if diff := cmp.Diff(want, allRows(out)); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestSelectRenameDropReindex(t *testing.T) {
	f := mustFrame(t, []string{"Parish_", "Town", "Secret"}, []string{"Braddan", "Douglas", "x"})
	f.Rename(map[string]string{"Parish_": "Parish"}).Drop("Secret", "Unknown")
	if diff := cmp.Diff([]string{"Parish", "Town"}, f.Columns()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	if _, err := f.Select("Town", "Postcode"); err == nil {
		t.Fatal("expected missing column error")
	}
	sel, err := f.Select("Town")
	if err != nil || sel.Get(0, "Town") != "Douglas" {
		t.Fatalf("unexpected select result %v err=%v", sel, err)
	}
	re, missing := f.Reindex("Town", "Postcode", "Parish")
	if diff := cmp.Diff([]string{"Postcode"}, missing); diff != "" {
		t.Fatalf("missing (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Douglas", "", "Braddan"}, re.Values(0)); diff != "" {
		t.Fatalf("values (-want +got):\n%s", diff)
	}
}

func TestFilterAndInsert(t *testing.T) {
	f := mustFrame(t, []string{"Status"}, []string{"Live"}, []string{"Dissolved"})
	live := f.Filter(func(r Row) bool { return r.Get("Status") == "Live" })
	if live.Len() != 1 {
		t.Fatalf("expected 1 live row, got %d", live.Len())
	}
	f.Insert(0, "Hash", func(r Row) string { return f.RowHash(r.Index()) })
	if f.Columns()[0] != "Hash" {
		t.Fatalf("expected Hash first, got %v", f.Columns())
	}
	sum := md5.Sum([]byte("Live"))
	if got := f.Get(0, "Hash"); got != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected hash %q", got)
	}
	if f.Get(1, "Status") != "Dissolved" {
		t.Fatal("existing cells must shift right")
	}
}

func TestRowHashJoinsWithComma(t *testing.T) {
	f := mustFrame(t, []string{"A", "B"}, []string{"1", "2"})
	sum := md5.Sum([]byte("1,2"))
	if got := f.RowHash(0); got != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected hash %q", got)
	}
}
