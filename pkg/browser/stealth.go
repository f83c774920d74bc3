package browser

// stealthJS is injected into the page context on first use of a scripted
// session. It hides the usual automation tells: the webdriver flag, empty
// plugin and language lists, an implausible screen, and the
// notification-permission shortcut that headless builds expose.
const stealthJS = `
Object.defineProperty(navigator, 'webdriver', {get: () => false});
Object.defineProperty(navigator, 'plugins', {
  get: () => [1, 2, 3, 4].slice(0, 2 + Math.floor(Math.random() * 3)),
});
Object.defineProperty(navigator, 'languages', {
  get: () => ['en-US', 'en'],
});
Object.defineProperty(screen, 'width', {get: () => 1920});
Object.defineProperty(screen, 'height', {get: () => 1080});
Object.defineProperty(screen, 'colorDepth', {get: () => 24});
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({state: Notification.permission})
    : origQuery(parameters)
);
`

// StealthScript returns the anti-detection JS for drivers that execute
// scripts in the page context. The HTTP driver ignores it.
func StealthScript() string { return stealthJS }
