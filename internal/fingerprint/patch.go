package fingerprint

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PatchSet is a declarative description of the property overrides and wrapped
// native functions a session installs before any page script runs. Keeping
// the set declarative lets the engine binding translate it into whatever
// injection mechanism the target engine offers, and lets tests assert on the
// patches without a live browser.
type PatchSet struct {
	// Properties are redefined with Object.defineProperty on the named target.
	Properties []PropertyPatch
	// Deletions remove competing-family artifacts, e.g. window.chrome on a
	// firefox identity.
	Deletions []Deletion

	WebGLVendor   string
	WebGLRenderer string

	CanvasNoiseSeed float64
	AudioNoiseSeed  float64
}

type PropertyPatch struct {
	Object   string // "navigator", "screen", "window"
	Property string
	Value    any
}

type Deletion struct {
	Object   string
	Property string
}

// BuildPatchSet derives the base patch set from an identity. Family overlays
// are applied on top by the engine pool.
func BuildPatchSet(id *Identity) PatchSet {
	ps := PatchSet{
		Properties: []PropertyPatch{
			{Object: "navigator", Property: "webdriver", Value: nil},
			{Object: "navigator", Property: "platform", Value: id.Platform},
			{Object: "navigator", Property: "vendor", Value: id.Vendor},
			{Object: "navigator", Property: "hardwareConcurrency", Value: id.HardwareConcurrency},
			{Object: "navigator", Property: "deviceMemory", Value: id.DeviceMemoryGB},
			{Object: "navigator", Property: "maxTouchPoints", Value: id.MaxTouchPoints},
			{Object: "navigator", Property: "language", Value: id.Locale},
			{Object: "navigator", Property: "languages", Value: languagesFor(id.Locale)},
			{Object: "screen", Property: "width", Value: id.Screen.Width},
			{Object: "screen", Property: "height", Value: id.Screen.Height},
			{Object: "screen", Property: "availWidth", Value: id.Screen.Width},
			{Object: "screen", Property: "availHeight", Value: id.Screen.Height - 40},
		},
		WebGLVendor:     id.WebGLVendor,
		WebGLRenderer:   id.WebGLRenderer,
		CanvasNoiseSeed: id.CanvasNoiseSeed,
		AudioNoiseSeed:  id.AudioNoiseSeed,
	}

	if len(id.Plugins) > 0 {
		ps.Properties = append(ps.Properties, PropertyPatch{
			Object: "navigator", Property: "pluginNames", Value: id.Plugins,
		})
	}

	return ps
}

// Add appends or replaces a property patch.
func (ps *PatchSet) Add(object, property string, value any) {
	for i, p := range ps.Properties {
		if p.Object == object && p.Property == property {
			ps.Properties[i].Value = value
			return
		}
	}
	ps.Properties = append(ps.Properties, PropertyPatch{Object: object, Property: property, Value: value})
}

// Delete marks a property for removal from the page environment.
func (ps *PatchSet) Delete(object, property string) {
	ps.Deletions = append(ps.Deletions, Deletion{Object: object, Property: property})
}

// Script renders the patch set as a JavaScript init script. The script is the
// executable counterpart of the declarative set and carries no state beyond
// it; rendering the same set twice yields the same script.
func (ps *PatchSet) Script() string {
	var b strings.Builder
	b.WriteString("(() => {\n")

	for _, p := range ps.Properties {
		val, err := json.Marshal(p.Value)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b,
			"try { Object.defineProperty(%s, %q, { get: () => %s, configurable: true }); } catch (e) {}\n",
			p.Object, p.Property, string(val))
	}

	for _, d := range ps.Deletions {
		fmt.Fprintf(&b, "try { delete %s[%q]; } catch (e) {}\n", d.Object, d.Property)
	}

	if ps.WebGLVendor != "" || ps.WebGLRenderer != "" {
		vendor, _ := json.Marshal(ps.WebGLVendor)
		renderer, _ := json.Marshal(ps.WebGLRenderer)
		fmt.Fprintf(&b, webglTemplate, string(vendor), string(renderer))
	}

	fmt.Fprintf(&b, canvasTemplate, ps.CanvasNoiseSeed)
	fmt.Fprintf(&b, audioTemplate, ps.AudioNoiseSeed)

	b.WriteString("})();\n")
	return b.String()
}

// UNMASKED_VENDOR_WEBGL = 0x9245, UNMASKED_RENDERER_WEBGL = 0x9246.
const webglTemplate = `try {
  const spoofParam = (proto) => {
    const orig = proto.getParameter;
    proto.getParameter = function (param) {
      if (param === 37445) return %s;
      if (param === 37446) return %s;
      return orig.apply(this, arguments);
    };
  };
  if (typeof WebGLRenderingContext !== 'undefined') spoofParam(WebGLRenderingContext.prototype);
  if (typeof WebGL2RenderingContext !== 'undefined') spoofParam(WebGL2RenderingContext.prototype);
} catch (e) {}
`

// Canvas noise perturbs pixel data as it is read out, so the perturbation is
// applied at data-generation time inside the page rather than only at
// configuration time.
const canvasTemplate = `try {
  const seed = %v;
  const noiseAt = (i) => Math.floor(((Math.sin(seed * 1e9 + i) + 1) / 2) * 3) - 1;
  const origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
  CanvasRenderingContext2D.prototype.getImageData = function () {
    const data = origGetImageData.apply(this, arguments);
    for (let i = 0; i < data.data.length; i += 101) {
      data.data[i] = Math.max(0, Math.min(255, data.data[i] + noiseAt(i)));
    }
    return data;
  };
  const origToDataURL = HTMLCanvasElement.prototype.toDataURL;
  HTMLCanvasElement.prototype.toDataURL = function () {
    const ctx = this.getContext('2d');
    if (ctx && this.width > 0 && this.height > 0) {
      ctx.getImageData(0, 0, 1, 1);
    }
    return origToDataURL.apply(this, arguments);
  };
} catch (e) {}
`

const audioTemplate = `try {
  const audioSeed = %v;
  if (typeof AnalyserNode !== 'undefined') {
    const origFloat = AnalyserNode.prototype.getFloatFrequencyData;
    AnalyserNode.prototype.getFloatFrequencyData = function (array) {
      origFloat.apply(this, arguments);
      for (let i = 0; i < array.length; i += 97) {
        array[i] += (audioSeed - 0.5) * 1e-5;
      }
    };
  }
} catch (e) {}
`

func languagesFor(locale string) []string {
	if locale == "en-US" {
		return []string{"en-US", "en"}
	}
	return []string{locale, "en"}
}
