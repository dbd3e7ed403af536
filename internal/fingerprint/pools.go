package fingerprint

// Family identifies one of the automation engine identities used for
// failover. Every generated identity is internally consistent with its
// family: a webkit identity never reports a Windows platform and a firefox
// identity never carries a WebKit user-agent token.
type Family string

const (
	FamilyChromium Family = "chromium"
	FamilyFirefox  Family = "firefox"
	FamilyWebKit   Family = "webkit"
)

type osProfile struct {
	uaToken  string // OS segment of the user-agent string
	platform string // navigator.platform
}

var windowsOS = osProfile{uaToken: "Windows NT 10.0; Win64; x64", platform: "Win32"}
var macOS = osProfile{uaToken: "Macintosh; Intel Mac OS X 10_15_7", platform: "MacIntel"}
var linuxOS = osProfile{uaToken: "X11; Linux x86_64", platform: "Linux x86_64"}

// Safari only ships on Apple hardware, so the webkit pool is mac-only.
var osPools = map[Family][]osProfile{
	FamilyChromium: {windowsOS, macOS, linuxOS},
	FamilyFirefox:  {windowsOS, macOS, linuxOS},
	FamilyWebKit:   {macOS},
}

var chromeVersions = []string{
	"120.0.0.0",
	"121.0.0.0",
	"122.0.0.0",
	"123.0.0.0",
	"124.0.0.0",
}

var firefoxVersions = []string{
	"121.0",
	"122.0",
	"123.0",
	"124.0",
}

var safariVersions = []string{
	"17.1",
	"17.2",
	"17.3",
	"17.4",
}

type webglProfile struct {
	vendor   string
	renderer string
}

var webglPools = map[Family][]webglProfile{
	FamilyChromium: {
		{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		{"Google Inc. (AMD)", "ANGLE (AMD, AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
	},
	FamilyFirefox: {
		{"NVIDIA Corporation", "NVIDIA GeForce GTX 1660/PCIe/SSE2"},
		{"Intel", "Mesa Intel(R) UHD Graphics 630 (CFL GT2)"},
		{"AMD", "AMD Radeon RX 580 Series"},
	},
	FamilyWebKit: {
		{"Apple Inc.", "Apple GPU"},
		{"Apple Inc.", "Apple M1"},
		{"Apple Inc.", "Apple M2"},
	},
}

type resolution struct {
	width  int
	height int
}

var resolutions = []resolution{
	{1920, 1080},
	{2560, 1440},
	{1536, 864},
	{1440, 900},
	{1680, 1050},
	{1366, 768},
}

// Anchor cities pair a timezone with a matching locale and coordinates so a
// generated identity never claims a Berlin timezone with a Tokyo location.
type locationAnchor struct {
	city      string
	timezone  string
	locale    string
	latitude  float64
	longitude float64
}

var locationAnchors = []locationAnchor{
	{"New York", "America/New_York", "en-US", 40.7128, -74.0060},
	{"Chicago", "America/Chicago", "en-US", 41.8781, -87.6298},
	{"Los Angeles", "America/Los_Angeles", "en-US", 34.0522, -118.2437},
	{"Toronto", "America/Toronto", "en-CA", 43.6532, -79.3832},
	{"London", "Europe/London", "en-GB", 51.5074, -0.1278},
	{"Berlin", "Europe/Berlin", "de-DE", 52.5200, 13.4050},
	{"Paris", "Europe/Paris", "fr-FR", 48.8566, 2.3522},
	{"Amsterdam", "Europe/Amsterdam", "nl-NL", 52.3676, 4.9041},
}

var corePool = []int{4, 6, 8, 12, 16}
var memoryPool = []int{4, 8, 16, 32}
var touchPool = []int{0, 0, 0, 5}

var chromiumPlugins = []string{
	"PDF Viewer",
	"Chrome PDF Viewer",
	"Chromium PDF Viewer",
	"Microsoft Edge PDF Viewer",
	"WebKit built-in PDF",
}
