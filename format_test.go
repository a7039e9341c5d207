package framemonitor

import "testing"

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"id", FormatID(42, true), "42"},
		{"id unknown", FormatID(42, false), "?"},
		{"status", FormatStatus(StatusTooSmall, true), "Too small"},
		{"status unknown", FormatStatus(StatusComplete, false), "?"},
		{"dimension", FormatDimension(1920, true), "1920"},
		{"dimension unknown", FormatDimension(1920, false), "?"},
		{"pixel format", FormatPixelFormat(PixelFormatRGB8, true), "0x2180014"},
		{"pixel format unknown", FormatPixelFormat(PixelFormatRGB8, false), "?"},
		{"fps rounds", FormatFPS(29.9951, true), "30.00"},
		{"fps two decimals", FormatFPS(12.345678, true), "12.35"},
		{"fps unknown", FormatFPS(30, false), "?"},
		{"one missing", MissingFramesText(1), "1 missing frame detected"},
		{"many missing", MissingFramesText(12), "12 missing frames detected"},
		{"zero missing", MissingFramesText(0), "0 missing frames detected"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestPixelFormatParsing(t *testing.T) {
	tests := []struct {
		in      string
		want    PixelFormat
		wantErr bool
	}{
		{"0x01080001", PixelFormatMono8, false},
		{"0x2180014", PixelFormatRGB8, false},
		{"GRAY8", PixelFormatMono8, false},
		{"rgb", PixelFormatRGB8, false},
		{"NV12", PixelFormatYCbCr411_8, false},
		{"0X1080001", PixelFormatMono8, false},
		{"banana", 0, true},
		{"0x10zzz", 0, true},
		{"0x", 0, true},
		{"0x1ffffffff", 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePixelFormat(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseVerbosity(t *testing.T) {
	for in, want := range map[string]Verbosity{
		"":            VerbosityOnAnomaly,
		"on_anomaly":  VerbosityOnAnomaly,
		"ALWAYS_SHOW": VerbosityAlwaysShow,
		"show":        VerbosityAlwaysShow,
	} {
		got, err := ParseVerbosity(in)
		if err != nil {
			t.Errorf("ParseVerbosity(%q): unexpected error %v", in, err)
		}
		if got != want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := ParseVerbosity("loud"); err == nil {
		t.Error("expected error for unknown verbosity")
	}
}

func TestReasonAndFieldStrings(t *testing.T) {
	if got := (ReasonIDUnreadable | ReasonTimingAnomaly).String(); got != "id_unreadable|timing_anomaly" {
		t.Errorf("unexpected reason string %q", got)
	}
	if got := Reason(0).String(); got != "none" {
		t.Errorf("unexpected empty reason string %q", got)
	}
	if got := (FieldWidth | FieldFormat).String(); got != "width|format" {
		t.Errorf("unexpected field string %q", got)
	}
}
