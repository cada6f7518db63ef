package generator

import "html/template"

var pageTemplate = template.Must(template.New("structure-map").Funcs(template.FuncMap{
	"toJSON": toJSON,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
   <meta charset="UTF-8"/>
   <meta name="viewport" content="width=device-width, initial-scale=1"/>
   <title>{{ .Title }}</title>
   <link rel="stylesheet" href="https://api.mapbox.com/mapbox-gl-js/v1.13.3/mapbox-gl.css"/>
   <script src="https://api.mapbox.com/mapbox-gl-js/v1.13.3/mapbox-gl.js"></script>
   <style>
      :root {
         --panel-bg: #1e1e1e;
         --panel-text: #e0e0e0;
         --panel-border: #333;
         --row-border: #444;
      }
      html, body { margin: 0; padding: 0; height: 100%; font-family: Arial, sans-serif; }
      #map { position: absolute; top: 0; bottom: 0; width: 100%; }
      .sidepanel {
         height: 100%; width: 0; position: fixed; z-index: 1; top: 0; left: 0;
         background-color: var(--panel-bg); color: var(--panel-text);
         overflow-x: hidden; transition: 0.4s;
      }
      .sidepanel table { border-collapse: collapse; width: 100%; }
      .sidepanel td { border-bottom: 1px solid var(--row-border); padding: 4px 6px; }
      .sidepanel .closebtn {
         position: absolute; top: 0; right: 25px; font-size: 36px;
         color: var(--panel-text); background: none; border: none; cursor: pointer;
      }
      #stationRouteSelector { margin: 60px 25px 0; visibility: hidden; }
      .updated { position: absolute; bottom: 4px; right: 8px; font-size: 0.75em; color: #888; z-index: 1; }
   </style>
</head>
<body>
   <div id="mySidepanel" class="sidepanel">
      <button id="closeBtn" class="closebtn">&times;</button>
      <select id="stationRouteSelector">
         {{ range .RouteOptions }}<option value="{{ .Value }}">{{ .Label }}</option>
         {{ end }}
      </select>
      <div id="infoContent"></div>
   </div>
   <div id="map"></div>
   <div class="updated">Generated {{ .UpdatedAt }} &middot; style {{ .Style }}</div>

   <script>
      const state = {{ toJSON .State }};
      const apiBase = {{ .APIBase }};

      const map = new mapboxgl.Map({
         container: 'map',
         style: { version: 8, sources: {}, layers: [] },
         zoom: state.map.zoom,
         center: state.map.center,
         maxBounds: state.map.maxBounds,
         bearing: state.map.bearing,
         hash: state.map.hash,
         transformRequest: (url, resourceType) => {
            if (url.startsWith('/')) {
               return { url: window.location.origin + url };
            }
         }
      });

      function post(path, body) {
         return fetch(apiBase + path, {
            method: 'POST',
            headers: { 'Content-Type': 'application/json' },
            body: JSON.stringify(body || {})
         }).then(r => r.json());
      }

      function applyPanel(p) {
         const info = document.getElementById('infoContent');
         if (p.padding) info.style.padding = p.padding;
         info.innerHTML = p.content || '';
         document.getElementById('stationRouteSelector').style.visibility = p.selectorVisible ? 'visible' : 'hidden';
         document.getElementById('mySidepanel').style.width = p.width;
      }

      function applyLayers(states) {
         for (const s of states) {
            if (!map.getLayer(s.id)) continue;
            if (s.filter) map.setFilter(s.id, s.filter);
            map.setLayoutProperty(s.id, 'visibility', s.visibility);
         }
      }

      function hits(point, layers) {
         const present = layers.filter(id => map.getLayer(id));
         if (present.length === 0) return [];
         const byLayer = new Map();
         for (const f of map.queryRenderedFeatures(point, { layers: present })) {
            const id = f.layer.id;
            if (!byLayer.has(id)) byLayer.set(id, []);
            byLayer.get(id).push({ type: 'Feature', geometry: null, properties: f.properties });
         }
         return Array.from(byLayer, ([layer, features]) => ({ layer, features }));
      }

      function loadImages() {
         return Promise.all(state.view.images.map(img => new Promise((resolve, reject) => {
            map.loadImage(img.url, (error, image) => {
               if (error) { reject(error); return; }
               map.addImage(img.id, image);
               resolve();
            });
         })));
      }

      map.on('load', () => {
         for (const src of state.view.sources) {
            const { id, ...def } = src;
            map.addSource(id, def);
         }
         const needsImage = l => l.layout && l.layout['icon-image'];
         for (const layer of state.view.layers) {
            if (!needsImage(layer)) map.addLayer(layer);
         }
         loadImages().then(() => {
            for (const layer of state.view.layers) {
               if (needsImage(layer)) map.addLayer(layer);
            }
         });

         fetch(apiBase + '/api/routes?wait=1')
            .then(r => r.json())
            .then(res => {
               const src = map.getSource(state.routeSource);
               if (src && res.collection) src.setData(res.collection);
               // The page may already list routes; rebuild so each appears once.
               const select = document.getElementById('stationRouteSelector');
               const current = select.value;
               select.innerHTML = '';
               for (const o of res.options) {
                  const option = document.createElement('option');
                  option.value = o.value;
                  option.textContent = o.label;
                  select.appendChild(option);
               }
               select.value = res.selected || current;
            })
            .catch(() => {});
      });

      map.on('click', (e) => {
         post('/api/click', { hits: hits(e.point, state.clickLayers) }).then(applyPanel);
      });

      let hovered = '';
      map.on('mousemove', (e) => {
         const h = hits(e.point, state.hoverLayers);
         const key = h.map(x => x.layer).join(',');
         if (key === hovered) return;
         hovered = key;
         post('/api/hover', { hits: h }).then(res => { map.getCanvas().style.cursor = res.cursor; });
      });

      document.getElementById('closeBtn').onclick = function() {
         post('/api/close').then(applyPanel);
      };

      document.getElementById('stationRouteSelector').onchange = function() {
         post('/api/routes/select', { value: this.value }).then(res => applyLayers(res.layers));
      };
   </script>
</body>
</html>
`))
