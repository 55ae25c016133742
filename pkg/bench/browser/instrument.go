package browser

// instrumentJS is installed before any page script runs. It monitors audio
// playback on media elements, utterance playback, and local recording, and
// reports each lifecycle fact to the host through the exposed __vbEmit
// function. It also maintains the snapshot the debug sampler pulls.
const instrumentJS = `
(() => {
	const emit = (type, payload) => {
		try {
			window.__vbEmit({ type, payload: payload || {} });
		} catch (e) {
			// Host callback not ready yet; nothing useful to do.
		}
	};

	const state = {
		monitored: [],
		transport: {},
		recording: false,
	};

	// Track audio activity on every media element, including ones attached
	// after load.
	const monitor = (el) => {
		if (el.__vbMonitored) return;
		el.__vbMonitored = true;
		state.monitored.push({ tag: el.tagName, src: el.currentSrc || "" });
		el.addEventListener("playing", () => emit("audio-start", { src: el.currentSrc || "" }));
		el.addEventListener("pause", () => emit("audio-stop", { src: el.currentSrc || "" }));
		el.addEventListener("ended", () => emit("audio-stop", { src: el.currentSrc || "" }));
	};

	const scan = () => {
		document.querySelectorAll("audio, video").forEach(monitor);
	};
	document.addEventListener("DOMContentLoaded", () => {
		scan();
		new MutationObserver(scan).observe(document.documentElement, {
			childList: true,
			subtree: true,
		});
	});

	// Sample WebRTC transport stats when the page holds a peer connection.
	const OrigPC = window.RTCPeerConnection;
	if (OrigPC) {
		window.RTCPeerConnection = function (...args) {
			const pc = new OrigPC(...args);
			setInterval(async () => {
				try {
					const stats = await pc.getStats();
					stats.forEach((report) => {
						if (report.type === "inbound-rtp" || report.type === "outbound-rtp") {
							state.transport[report.type] = {
								bytes: report.bytesReceived || report.bytesSent || 0,
								packets: report.packetsReceived || report.packetsSent || 0,
								jitter: report.jitter || 0,
							};
						}
					});
				} catch (e) {}
			}, 2000);
			return pc;
		};
		window.RTCPeerConnection.prototype = OrigPC.prototype;
	}

	// Utterance playback: decode the file through an <audio> element and
	// report speech-end when it finishes.
	window.__vbSpeak = (file) => {
		const el = new Audio(file);
		monitor(el);
		el.addEventListener("ended", () => emit("speech-end", { file }));
		return el.play().catch((e) => emit("speech-end", { file, error: String(e) }));
	};

	// Local recording of the agent's reply via MediaRecorder on the fake
	// media stream. The recording-complete payload carries the capture as
	// base64 plus its container format.
	let recorder = null;
	let chunks = [];
	window.__vbStartRecording = async () => {
		const stream = await navigator.mediaDevices.getUserMedia({ audio: true });
		chunks = [];
		recorder = new MediaRecorder(stream);
		recorder.addEventListener("dataavailable", (e) => chunks.push(e.data));
		recorder.addEventListener("start", () => {
			state.recording = true;
			emit("recording-start", {});
		});
		recorder.addEventListener("stop", async () => {
			state.recording = false;
			const blob = new Blob(chunks, { type: recorder.mimeType });
			const buf = await blob.arrayBuffer();
			let binary = "";
			new Uint8Array(buf).forEach((b) => (binary += String.fromCharCode(b)));
			emit("recording-complete", {
				audio: btoa(binary),
				format: recorder.mimeType,
			});
		});
		recorder.start();
	};
	window.__vbStopRecording = () => {
		if (recorder && recorder.state !== "inactive") recorder.stop();
	};

	window.__vbSnapshot = () => ({
		monitored: state.monitored,
		transport: state.transport,
		recording: state.recording,
	});
})();
`
