package server

// HTMLPage is the browser UI. It connects a SmartSuit over Web Bluetooth (or
// a synthetic pulse generator) and forwards frames to the server over a
// WebRTC data channel. Estimates come back on the channel and on /ws.
//
// window.ppgState exposes the page state to browser automation.
const HTMLPage = `<!DOCTYPE html>
<html>
<head>
    <title>PPG Heart Rate Interop</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background: #f5f5f5;
        }
        .container {
            background: white;
            padding: 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
        }
        h1 { color: #333; margin-bottom: 10px; }
        .subtitle { color: #666; margin-bottom: 30px; }
        button {
            background: #4285f4;
            color: white;
            border: none;
            padding: 12px 24px;
            border-radius: 4px;
            cursor: pointer;
            font-size: 16px;
            margin-right: 10px;
        }
        button:hover { background: #3367d6; }
        button:disabled { background: #ccc; cursor: not-allowed; }
        button.stop { background: #ea4335; }
        button.stop:hover { background: #d93025; }
        #status {
            margin: 20px 0;
            padding: 15px;
            border-radius: 4px;
            font-weight: 500;
        }
        .status-waiting { background: #fff3cd; color: #856404; }
        .status-connecting { background: #cce5ff; color: #004085; }
        .status-connected { background: #d4edda; color: #155724; }
        .status-error { background: #f8d7da; color: #721c24; }
        .status-closed { background: #e2e3e5; color: #383d41; }
        #bpm {
            font-size: 72px;
            font-weight: 600;
            color: #ea4335;
            margin: 20px 0 0;
        }
        .unit { color: #666; font-size: 18px; }
        #log {
            background: #1e1e1e;
            color: #d4d4d4;
            padding: 15px;
            border-radius: 4px;
            font-family: monospace;
            font-size: 12px;
            max-height: 200px;
            overflow-y: auto;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>PPG Heart Rate Interop</h1>
        <p class="subtitle">SmartSuit PPG frames over WebRTC, BPM estimated server-side</p>

        <button id="connectBtn" onclick="connectSuit()">Connect my Smart Suit</button>
        <button id="syntheticBtn" onclick="startSynthetic()">Synthetic Pulse</button>
        <button id="stopBtn" class="stop" onclick="stopAll()" disabled>Stop</button>
        <label>Speed <input id="speed" type="number" value="10" min="1" max="50" style="width: 50px"></label>

        <div id="status" class="status-waiting">Ready</div>

        <div id="bpm">--</div>
        <div class="unit">BPM</div>

        <h3>Log</h3>
        <div id="log"></div>
    </div>

    <script>
        const SERVICE_UUID = '12345678-1234-5678-1234-56789abcdef0';
        const CHARACTERISTIC_UUID = 'abcdef01-1234-5678-1234-56789abcdef0';
        const DEVICE_NAMES = ['SmartSuit 1', 'SmartSuit 2'];

        window.ppgState = {
            connected: false,
            source: null,
            framesSent: 0,
            estimates: 0,
            bpm: 0,
            wsEstimates: 0,
            error: null
        };

        let pc = null;
        let dc = null;
        let ws = null;
        let device = null;
        let characteristic = null;
        let syntheticTimer = null;

        function log(msg) {
            const el = document.getElementById('log');
            const line = document.createElement('div');
            line.textContent = new Date().toISOString().substr(11, 12) + ' ' + msg;
            el.appendChild(line);
            el.scrollTop = el.scrollHeight;
        }

        function setStatus(text, cls) {
            const el = document.getElementById('status');
            el.textContent = text;
            el.className = 'status-' + cls;
        }

        function onEstimate(data) {
            const est = JSON.parse(data);
            window.ppgState.estimates++;
            window.ppgState.bpm = est.bpm;
            document.getElementById('bpm').textContent = est.bpm;
        }

        function openSocket() {
            if (ws) return;
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onmessage = () => { window.ppgState.wsEstimates++; };
            ws.onclose = () => { ws = null; };
        }

        async function openChannel() {
            if (dc && dc.readyState === 'open') return;

            pc = new RTCPeerConnection({ iceServers: [] });
            dc = pc.createDataChannel('ppg', { ordered: true });
            dc.onmessage = (e) => onEstimate(e.data);

            const opened = new Promise((resolve, reject) => {
                dc.onopen = resolve;
                dc.onerror = (e) => reject(e.error || e);
            });

            pc.onconnectionstatechange = () => {
                log('Connection state: ' + pc.connectionState);
                if (pc.connectionState === 'failed') {
                    setStatus('Connection lost', 'error');
                    window.ppgState.error = 'connection failed';
                }
            };

            const offer = await pc.createOffer();
            await pc.setLocalDescription(offer);
            await new Promise((resolve) => {
                if (pc.iceGatheringState === 'complete') {
                    resolve();
                } else {
                    pc.onicecandidate = (e) => { if (e.candidate === null) resolve(); };
                }
            });

            const response = await fetch('/offer', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify(pc.localDescription)
            });
            if (!response.ok) {
                throw new Error('Server returned ' + response.status);
            }
            await pc.setRemoteDescription(await response.json());
            await opened;

            window.ppgState.connected = true;
            log('Data channel open');
        }

        function send(text) {
            if (!dc || dc.readyState !== 'open') return;
            dc.send(text);
            window.ppgState.framesSent += text.split('\n').filter(l => l.length > 0).length;
        }

        function started(source) {
            window.ppgState.source = source;
            document.getElementById('connectBtn').disabled = true;
            document.getElementById('syntheticBtn').disabled = true;
            document.getElementById('stopBtn').disabled = false;
        }

        async function connectSuit() {
            try {
                setStatus('Searching for Smart Suit...', 'connecting');
                if (!navigator.bluetooth) {
                    throw new Error('Web Bluetooth not available');
                }
                device = await navigator.bluetooth.requestDevice({
                    filters: DEVICE_NAMES.map(name => ({ name })),
                    optionalServices: [SERVICE_UUID]
                });
                device.addEventListener('gattserverdisconnected', () => {
                    setStatus('Connection lost', 'error');
                    log('Suit disconnected');
                });

                const gatt = await device.gatt.connect();
                const service = await gatt.getPrimaryService(SERVICE_UUID);
                characteristic = await service.getCharacteristic(CHARACTERISTIC_UUID);

                await openChannel();
                openSocket();

                const decoder = new TextDecoder();
                characteristic.addEventListener('characteristicvaluechanged', (e) => {
                    send(decoder.decode(e.target.value) + '\n');
                });
                await characteristic.startNotifications();

                started('bluetooth');
                setStatus('Connected to ' + device.name, 'connected');
                log('Streaming from ' + device.name);
            } catch (err) {
                window.ppgState.error = err.message || String(err);
                setStatus('Error: ' + window.ppgState.error, 'error');
                log('Error: ' + window.ppgState.error);
            }
        }

        // pulseValue mirrors the server test traces: a systolic peak 150 ms
        // after onset and a dicrotic wave at 420 ms, 30% of the peak.
        function pulseValue(t, periodMs) {
            const phase = t % periodMs;
            const g = (mu, sigma) => Math.exp(-((phase - mu) * (phase - mu)) / (2 * sigma * sigma));
            return Math.round(60000 + 60000 * (g(150, 40) + 0.3 * g(420, 60)));
        }

        function syntheticFrame(t, periodMs) {
            const ir = pulseValue(t, periodMs);
            return [t, ir, Math.round(ir * 0.9), '36.60', '40.00',
                '0.00', '0.00', '1.00', '0.00', '0.00', '0.00',
                '0.00', '0.00', '1.00', '0.00', '0.00', '0.00', 0].join(';');
        }

        async function startSynthetic(bpm) {
            try {
                setStatus('Connecting...', 'connecting');
                await openChannel();
                openSocket();

                const periodMs = Math.round(60000 / (bpm || 75));
                const stepMs = 10;
                const tickMs = 100;
                const speed = Math.max(1, parseInt(document.getElementById('speed').value, 10) || 1);
                let t = 0;

                syntheticTimer = setInterval(() => {
                    const lines = [];
                    const end = t + tickMs * speed;
                    for (; t < end; t += stepMs) {
                        lines.push(syntheticFrame(t, periodMs));
                    }
                    send(lines.join('\n') + '\n');
                }, tickMs);

                started('synthetic');
                setStatus('Synthetic pulse at ' + (bpm || 75) + ' BPM', 'connected');
                log('Synthetic generator started');
            } catch (err) {
                window.ppgState.error = err.message || String(err);
                setStatus('Error: ' + window.ppgState.error, 'error');
                log('Error: ' + window.ppgState.error);
            }
        }

        function stopAll() {
            if (syntheticTimer) {
                clearInterval(syntheticTimer);
                syntheticTimer = null;
            }
            if (characteristic) {
                characteristic.stopNotifications().catch(() => {});
                characteristic = null;
            }
            if (device && device.gatt.connected) {
                device.gatt.disconnect();
            }
            if (dc) { dc.close(); dc = null; }
            if (pc) { pc.close(); pc = null; }
            if (ws) { ws.close(); ws = null; }

            window.ppgState.connected = false;
            window.ppgState.source = null;
            document.getElementById('connectBtn').disabled = false;
            document.getElementById('syntheticBtn').disabled = false;
            document.getElementById('stopBtn').disabled = true;
            setStatus('Stopped', 'closed');
            log('Stopped');
        }
    </script>
</body>
</html>
`
