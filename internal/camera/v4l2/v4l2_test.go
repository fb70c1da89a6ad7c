package v4l2

import (
	"errors"
	"testing"

	"github.com/blackjack/webcam"
)

func TestPickFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats map[webcam.PixelFormat]string
		want    webcam.PixelFormat
		wantErr bool
	}{
		{name: "prefers grey", formats: map[webcam.PixelFormat]string{formatYUYV: "YUYV", formatGREY: "GREY"}, want: formatGREY},
		{name: "yuyv only", formats: map[webcam.PixelFormat]string{formatYUYV: "YUYV"}, want: formatYUYV},
		{name: "mjpeg only", formats: map[webcam.PixelFormat]string{0x47504A4D: "MJPG"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pickFormat(tt.formats)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("pickFormat = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestToGray(t *testing.T) {
	t.Run("grey", func(t *testing.T) {
		img, err := toGray([]byte{1, 2, 3, 4}, formatGREY, 2, 2)
		if err != nil {
			t.Fatalf("toGray failed: %v", err)
		}
		if img.GrayAt(1, 1).Y != 4 {
			t.Errorf("expected 4 at (1,1), got %d", img.GrayAt(1, 1).Y)
		}
	})

	t.Run("yuyv keeps luma", func(t *testing.T) {
		buf := []byte{10, 128, 20, 128, 30, 128, 40, 128}
		img, err := toGray(buf, formatYUYV, 2, 2)
		if err != nil {
			t.Fatalf("toGray failed: %v", err)
		}
		want := []uint8{10, 20, 30, 40}
		for i, v := range want {
			if img.Pix[i] != v {
				t.Errorf("pix[%d] = %d, want %d", i, img.Pix[i], v)
			}
		}
	})

	t.Run("short buffer", func(t *testing.T) {
		if _, err := toGray([]byte{1}, formatGREY, 2, 2); err == nil {
			t.Error("expected error for short frame")
		}
	})
}
