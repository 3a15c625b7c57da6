package browser

// hierarchyScript renders the page's visible, interactive DOM as an
// XCUI-shaped XML tree so device.ParseElements works unchanged.
const hierarchyScript = `() => {
  const typeFor = (el) => {
    const tag = el.tagName.toLowerCase();
    const role = (el.getAttribute('role') || '').toLowerCase();
    if (tag === 'button' || role === 'button') return 'XCUIElementTypeButton';
    if (tag === 'a') return 'XCUIElementTypeLink';
    if (tag === 'input' && el.type === 'password') return 'XCUIElementTypeSecureTextField';
    if (tag === 'input' && el.type === 'search') return 'XCUIElementTypeSearchField';
    if (tag === 'input' || tag === 'textarea') return 'XCUIElementTypeTextField';
    if (tag === 'img') return 'XCUIElementTypeImage';
    if (role === 'row' || role === 'listitem' || tag === 'li' || tag === 'tr') return 'XCUIElementTypeCell';
    if (role === 'tab') return 'XCUIElementTypeTab';
    if (role === 'switch') return 'XCUIElementTypeSwitch';
    return 'XCUIElementTypeOther';
  };
  const esc = (s) => String(s || '').slice(0, 120)
    .replace(/&/g, '&amp;').replace(/</g, '&lt;').replace(/>/g, '&gt;').replace(/"/g, '&quot;');
  const walk = (el, depth) => {
    if (depth > 40) return '';
    const r = el.getBoundingClientRect();
    const style = window.getComputedStyle(el);
    const visible = r.width > 0 && r.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
    const type = typeFor(el);
    const label = el.getAttribute('aria-label') || el.getAttribute('title') || el.getAttribute('alt') ||
      (el.children.length === 0 ? el.textContent.trim() : '');
    let out = '<' + type +
      ' name="' + esc(el.id || el.getAttribute('name')) + '"' +
      ' label="' + esc(label) + '"' +
      ' enabled="' + (!el.disabled) + '"' +
      ' visible="' + visible + '"' +
      ' x="' + Math.round(r.left) + '" y="' + Math.round(r.top) + '"' +
      ' width="' + Math.round(r.width) + '" height="' + Math.round(r.height) + '">';
    for (const child of el.children) out += walk(child, depth + 1);
    return out + '</' + type + '>';
  };
  return '<?xml version="1.0" encoding="UTF-8"?><XCUIElementTypeApplication>' +
    walk(document.body, 0) + '</XCUIElementTypeApplication>';
}`
