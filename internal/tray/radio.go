package tray

type checkable interface {
	Check()
	Uncheck()
}

// radioGroup keeps one menu item of a submenu checked. It is filled while the
// menu is built and only read once the click watchers are running.
type radioGroup struct {
	items map[string]checkable
}

func newRadioGroup() *radioGroup {
	return &radioGroup{items: make(map[string]checkable)}
}

func (g *radioGroup) add(key string, item checkable) {
	g.items[key] = item
}

// choose checks key and unchecks every other item.
func (g *radioGroup) choose(key string) {
	for k, item := range g.items {
		if k != key {
			item.Uncheck()
		}
	}
	if item, ok := g.items[key]; ok {
		item.Check()
	}
}
