package patterns

import "testing"

func testCompiler() *Compiler {
	formats := []Format{
		{
			Name:    "report",
			Pattern: `^(?P<type>METAR|SPECI) (?P<station>{ICAO4}) (?P<time>{DDHHMM})Z (?P<rest>{REST})$`,
		},
		{
			Name:    "cancel",
			Pattern: `^CNL (?P<station>{ICAO4})$`,
		},
	}
	return NewCompiler(formats, nil).MustCompile()
}

func TestParseExpandsPlaceholders(t *testing.T) {
	c := testCompiler()

	m := c.Parse("METAR KBOS 241154Z 27008KT 10SM FEW250 24/12 A3012")
	if m == nil {
		t.Fatal("no match")
	}
	if m.FormatName != "report" {
		t.Errorf("format = %q", m.FormatName)
	}
	if m.Captures["station"] != "KBOS" || m.Captures["time"] != "241154" {
		t.Errorf("captures = %v", m.Captures)
	}
	if m.Captures["rest"] != "27008KT 10SM FEW250 24/12 A3012" {
		t.Errorf("rest = %q", m.Captures["rest"])
	}
}

func TestParseTriesFormatsInOrder(t *testing.T) {
	c := testCompiler()

	m := c.Parse("CNL KJFK")
	if m == nil || m.FormatName != "cancel" {
		t.Fatalf("match = %+v", m)
	}
	if m.Captures["station"] != "KJFK" {
		t.Errorf("station = %q", m.Captures["station"])
	}
}

func TestParseNoMatch(t *testing.T) {
	c := testCompiler()
	if m := c.Parse("TAF KBOS 241130Z"); m != nil {
		t.Errorf("unexpected match %+v", m)
	}
}

func TestLocalPatternsOverrideGlobal(t *testing.T) {
	formats := []Format{
		{Name: "loc", Pattern: `^(?P<station>{ICAO4})$`},
	}
	c := NewCompiler(formats, map[string]string{"ICAO4": `[A-Z]{2}`}).MustCompile()

	if m := c.Parse("BO"); m == nil {
		t.Error("overridden pattern did not match")
	}
	if m := c.Parse("KBOS"); m != nil {
		t.Errorf("global pattern still in effect: %+v", m)
	}
}

func TestNOTAMTimePattern(t *testing.T) {
	formats := []Format{
		{Name: "window", Pattern: `^(?P<from>{NOTAMTIME})-(?P<to>{NOTAMTIME})$`},
	}
	c := NewCompiler(formats, nil).MustCompile()

	m := c.Parse("2608241430-2608251430")
	if m == nil {
		t.Fatal("no match")
	}
	if m.Captures["from"] != "2608241430" || m.Captures["to"] != "2608251430" {
		t.Errorf("captures = %v", m.Captures)
	}
	if c.Parse("26x8241430-2608251430") != nil {
		t.Error("malformed time matched")
	}
}
