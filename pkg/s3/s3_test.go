package s3

import "testing"

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name   string
		bucket string
		region string
		key    string
		want   string
	}{
		{
			name:   "us-east-1 uses the global hostname",
			bucket: "mybucket",
			region: "us-east-1",
			key:    "logo_1700000000.png",
			want:   "https://mybucket.s3.amazonaws.com/logo_1700000000.png",
		},
		{
			name:   "empty region uses the global hostname",
			bucket: "mybucket",
			region: "",
			key:    "app.css",
			want:   "https://mybucket.s3.amazonaws.com/app.css",
		},
		{
			name:   "regional endpoint",
			bucket: "assets",
			region: "eu-west-1",
			key:    "site_abcdef.js",
			want:   "https://assets.s3.eu-west-1.amazonaws.com/site_abcdef.js",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicURL(tt.bucket, tt.region, tt.key); got != tt.want {
				t.Fatalf("PublicURL() = %q, want %q", got, tt.want)
			}
		})
	}
}
