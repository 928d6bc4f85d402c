// Package fingerprint hooks fingerprint-prone browser APIs before any
// page script runs and classifies what the page actually probed.
package fingerprint

import (
	"context"
	"regexp"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/footprintcz/footprint/internal/common"
	"github.com/footprintcz/footprint/internal/domains"
	"github.com/footprintcz/footprint/internal/models"
	"github.com/footprintcz/footprint/internal/trackers"
)

// stackURLPattern pulls hostnames out of JS stack trace frames.
var stackURLPattern = regexp.MustCompile(`https?://([^/\s:]+)`)

// The primary active fingerprinting vectors. Everything else counts as
// passive enumeration.
var activeAPIs = map[string]bool{"canvas": true, "webgl": true, "audio": true}

// monitorScript is evaluated on every new document before page code.
// Hooked APIs append to window.__fp_log, capturing a slice of the call
// stack so events can be attributed to the script's domain.
const monitorScript = `
(function() {
	'use strict';
	if (window.__fp_log) return;
	window.__fp_log = [];

	function _log(api, method, details) {
		var stack = '';
		try {
			stack = new Error().stack || '';
			stack = stack.split('\n').slice(2, 5).join(' | ');
		} catch (e) {}
		window.__fp_log.push({
			api: api,
			method: method,
			timestamp: Date.now(),
			stack: stack,
			details: details || ''
		});
	}

	try {
		var origToDataURL = HTMLCanvasElement.prototype.toDataURL;
		HTMLCanvasElement.prototype.toDataURL = function() {
			_log('canvas', 'toDataURL', this.width + 'x' + this.height);
			return origToDataURL.apply(this, arguments);
		};

		var origToBlob = HTMLCanvasElement.prototype.toBlob;
		HTMLCanvasElement.prototype.toBlob = function() {
			_log('canvas', 'toBlob', this.width + 'x' + this.height);
			return origToBlob.apply(this, arguments);
		};

		var origGetImageData = CanvasRenderingContext2D.prototype.getImageData;
		CanvasRenderingContext2D.prototype.getImageData = function() {
			_log('canvas', 'getImageData',
				arguments[0] + ',' + arguments[1] + ',' + arguments[2] + ',' + arguments[3]);
			return origGetImageData.apply(this, arguments);
		};
	} catch (e) {}

	try {
		var glContexts = [
			typeof WebGLRenderingContext !== 'undefined' ? WebGLRenderingContext : null,
			typeof WebGL2RenderingContext !== 'undefined' ? WebGL2RenderingContext : null,
		];
		var watchParams = {
			0x1F00: 'VENDOR', 0x1F01: 'RENDERER', 0x1F02: 'VERSION',
			0x9245: 'UNMASKED_VENDOR_WEBGL', 0x9246: 'UNMASKED_RENDERER_WEBGL'
		};

		glContexts.forEach(function(Ctx) {
			if (!Ctx) return;

			var origGetParam = Ctx.prototype.getParameter;
			Ctx.prototype.getParameter = function(pname) {
				if (watchParams[pname]) {
					_log('webgl', 'getParameter', watchParams[pname]);
				}
				return origGetParam.apply(this, arguments);
			};

			var origGetExt = Ctx.prototype.getExtension;
			Ctx.prototype.getExtension = function(name) {
				_log('webgl', 'getExtension', name);
				return origGetExt.apply(this, arguments);
			};

			var origGetSupported = Ctx.prototype.getSupportedExtensions;
			Ctx.prototype.getSupportedExtensions = function() {
				_log('webgl', 'getSupportedExtensions', '');
				return origGetSupported.apply(this, arguments);
			};
		});
	} catch (e) {}

	try {
		if (typeof AudioContext !== 'undefined') {
			var OrigAC = AudioContext;
			window.AudioContext = function() {
				_log('audio', 'AudioContext', 'constructor');
				return new OrigAC();
			};
			window.AudioContext.prototype = OrigAC.prototype;
			Object.defineProperty(window.AudioContext, 'name', {value: 'AudioContext'});
		}

		if (typeof OfflineAudioContext !== 'undefined') {
			var OrigOAC = OfflineAudioContext;
			window.OfflineAudioContext = function(channels, length, sampleRate) {
				_log('audio', 'OfflineAudioContext', channels + ',' + length + ',' + sampleRate);
				return new OrigOAC(channels, length, sampleRate);
			};
			window.OfflineAudioContext.prototype = OrigOAC.prototype;
			Object.defineProperty(window.OfflineAudioContext, 'name', {value: 'OfflineAudioContext'});
		}

		if (typeof AnalyserNode !== 'undefined') {
			var origGetFloat = AnalyserNode.prototype.getFloatFrequencyData;
			if (origGetFloat) {
				AnalyserNode.prototype.getFloatFrequencyData = function(array) {
					_log('audio', 'getFloatFrequencyData', '');
					return origGetFloat.apply(this, arguments);
				};
			}
		}
	} catch (e) {}

	try {
		var navProps = ['hardwareConcurrency', 'deviceMemory', 'languages', 'platform', 'plugins', 'mimeTypes'];
		navProps.forEach(function(prop) {
			var desc = Object.getOwnPropertyDescriptor(Navigator.prototype, prop) ||
				Object.getOwnPropertyDescriptor(navigator, prop);
			if (desc && desc.get) {
				var origGet = desc.get;
				Object.defineProperty(Navigator.prototype, prop, {
					get: function() {
						_log('navigator', prop, '');
						return origGet.call(this);
					},
					configurable: true
				});
			}
		});

		var screenProps = ['colorDepth', 'pixelDepth'];
		screenProps.forEach(function(prop) {
			var desc = Object.getOwnPropertyDescriptor(Screen.prototype, prop) ||
				Object.getOwnPropertyDescriptor(screen, prop);
			if (desc && desc.get) {
				var origGet = desc.get;
				Object.defineProperty(Screen.prototype, prop, {
					get: function() {
						_log('navigator', 'screen.' + prop, '');
						return origGet.call(this);
					},
					configurable: true
				});
			}
		});

		if (navigator.connection) {
			var connProps = ['effectiveType', 'downlink', 'rtt', 'saveData'];
			connProps.forEach(function(prop) {
				var desc = Object.getOwnPropertyDescriptor(
					Object.getPrototypeOf(navigator.connection), prop
				);
				if (desc && desc.get) {
					var origGet = desc.get;
					Object.defineProperty(navigator.connection, prop, {
						get: function() {
							_log('navigator', 'connection.' + prop, '');
							return origGet.call(this);
						},
						configurable: true
					});
				}
			});
		}
	} catch (e) {}

	try {
		if (document.fonts && document.fonts.check) {
			var origFontCheck = document.fonts.check.bind(document.fonts);
			document.fonts.check = function(font, text) {
				_log('font', 'fonts.check', font);
				return origFontCheck(font, text);
			};
		}
	} catch (e) {}

	try {
		var origGetItem = Storage.prototype.getItem;
		var storageCallCount = 0;
		Storage.prototype.getItem = function(key) {
			storageCallCount++;
			if (storageCallCount <= 5) {
				_log('storage', 'getItem', key);
			}
			return origGetItem.apply(this, arguments);
		};

		if (typeof indexedDB !== 'undefined') {
			var origIDBOpen = indexedDB.open.bind(indexedDB);
			indexedDB.open = function(name, version) {
				_log('storage', 'indexedDB.open', name);
				return origIDBOpen(name, version);
			};
		}
	} catch (e) {}
})();
`

// Detector instruments pages and harvests fingerprint events.
type Detector struct {
	cfg      common.FingerprintingSettings
	trackers *trackers.DB
	logger   arbor.ILogger
}

func NewDetector(cfg common.FingerprintingSettings, trackerDB *trackers.DB, logger arbor.ILogger) *Detector {
	return &Detector{cfg: cfg, trackers: trackerDB, logger: logger}
}

// Inject installs the monitoring hooks. Must run before navigation so
// the hooks beat any page script.
func (d *Detector) Inject(ctx context.Context) error {
	if !d.cfg.Enabled {
		return nil
	}
	return chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(monitorScript).Do(ctx)
		return err
	}))
}

type rawEvent struct {
	API       string  `json:"api"`
	Method    string  `json:"method"`
	Timestamp float64 `json:"timestamp"`
	Stack     string  `json:"stack"`
	Details   string  `json:"details"`
}

// Collect reads back the hook log and classifies it. Call after the
// dwell phases so late-firing trackers are included.
func (d *Detector) Collect(ctx context.Context) *models.FingerprintResult {
	if !d.cfg.Enabled {
		return &models.FingerprintResult{Severity: models.SeverityNone}
	}

	var raw []rawEvent
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.__fp_log || []`, &raw)); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to collect fingerprint events")
		return &models.FingerprintResult{Severity: models.SeverityNone}
	}

	events := make([]models.FingerprintEvent, 0, len(raw))
	apisSeen := make(map[string]bool)
	entitiesSeen := make(map[string]bool)

	for _, r := range raw {
		domain := domainFromStack(r.Stack)
		var entity string
		if domain != "" {
			entity, _ = d.trackers.Classify(domain)
		}

		events = append(events, models.FingerprintEvent{
			API:             r.API,
			Method:          r.Method,
			CallStackDomain: domain,
			TrackerEntity:   entity,
			Details:         r.Details,
			Timestamp:       time.UnixMilli(int64(r.Timestamp)).UTC(),
		})
		apisSeen[r.API] = true
		if entity != "" {
			entitiesSeen[entity] = true
		}
	}

	return &models.FingerprintResult{
		Events:            events,
		Severity:          classifySeverity(apisSeen, len(events)),
		CanvasDetected:    apisSeen["canvas"],
		WebGLDetected:     apisSeen["webgl"],
		AudioDetected:     apisSeen["audio"],
		FontDetected:      apisSeen["font"],
		NavigatorDetected: apisSeen["navigator"],
		StorageDetected:   apisSeen["storage"],
		UniqueAPIs:        len(apisSeen),
		UniqueEntities:    len(entitiesSeen),
	}
}

// domainFromStack extracts the first registered domain mentioned in a
// JS stack trace.
func domainFromStack(stack string) string {
	if stack == "" {
		return ""
	}
	for _, m := range stackURLPattern.FindAllStringSubmatch(stack, -1) {
		if reg := domains.Registered(m[1]); reg != "" {
			return reg
		}
	}
	return ""
}

// classifySeverity grades the session: passive covers pure enumeration,
// active means one of canvas/webgl/audio fired, aggressive means the
// page combined several active techniques.
func classifySeverity(apis map[string]bool, eventCount int) models.FingerprintSeverity {
	if eventCount == 0 {
		return models.SeverityNone
	}

	active := 0
	for api := range apis {
		if activeAPIs[api] {
			active++
		}
	}

	switch {
	case active == 0:
		return models.SeverityPassive
	case active >= 2:
		return models.SeverityAggressive
	default:
		return models.SeverityActive
	}
}
