package output

import "net/http"

// ViewerHandler serves a page showing the preview stream with a mode
// toggle button and a live status line.
func ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(viewerHTML))
	}
}

const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ShareFrame</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            background: #000;
            overflow: hidden;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            font-family: system-ui, -apple-system, sans-serif;
        }
        img {
            width: 100vw;
            height: 100vh;
            object-fit: contain;
            display: block;
            background: #000;
        }
        .status {
            position: fixed;
            bottom: 16px;
            left: 16px;
            padding: 8px 14px;
            background: rgba(40, 40, 40, 0.9);
            color: #ccc;
            border-radius: 20px;
            font-size: 13px;
        }
        .fab {
            position: fixed;
            bottom: 24px;
            right: 24px;
            width: 56px;
            height: 56px;
            border-radius: 50%;
            border: none;
            background: rgba(70, 130, 180, 0.9);
            color: white;
            font-size: 20px;
            cursor: pointer;
            box-shadow: 0 4px 12px rgba(0,0,0,0.4);
            transition: all 0.2s ease;
        }
        .fab:hover { transform: scale(1.1); }
        .fab.share { background: rgba(220, 80, 80, 0.9); }
    </style>
</head>
<body>
    <img src="/stream" alt="ShareFrame preview">
    <div class="status" id="status">connecting…</div>
    <button class="fab" id="toggle" onclick="toggleMode()" title="Toggle mode">⇄</button>
    <script>
        function render(st) {
            const btn = document.getElementById('toggle');
            btn.classList.toggle('share', st.mode === 'share');
            const r = st.region || {};
            document.getElementById('status').textContent =
                st.mode + ' · ' + r.width + 'x' + r.height + ' @ ' + r.x + ',' + r.y +
                ' · ' + st.source + (st.running ? '' : ' · stopped');
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/api/status/stream');
            ws.onmessage = ev => render(JSON.parse(ev.data));
            ws.onclose = () => setTimeout(connect, 1000);
        }

        function toggleMode() {
            fetch('/api/mode/toggle', { method: 'POST' }).catch(console.error);
        }

        connect();
    </script>
</body>
</html>`
