// Package present 把 cycle 结果适配为地图客户端可直接消费的标记集。
package present

// Style 是一个年龄档位的渲染样式。
type Style struct {
	Color string `json:"color"`
	Label string `json:"label"`
	Tier  int    `json:"tier"`
}

var tiers = [...]struct {
	maxBucket int
	style     Style
}{
	{1, Style{Color: "#ff0000", Label: "0-5", Tier: 0}},
	{3, Style{Color: "#ff6600", Label: "5-15", Tier: 1}},
	{6, Style{Color: "#ffff00", Label: "15-30", Tier: 2}},
	{9, Style{Color: "#ffffff", Label: "30-45", Tier: 3}},
}

var oldest = Style{Color: "#87CEEB", Label: "45-60", Tier: 4}

// StyleFor 按 floor(age/5) 选择五档颜色之一；负数按 0 处理。
func StyleFor(ageMinutes int) Style {
	b := ageMinutes / 5
	if b < 0 {
		b = 0
	}
	for _, t := range tiers {
		if b <= t.maxBucket {
			return t.style
		}
	}
	return oldest
}

// Legend 返回全部档位（从新到旧），供客户端绘制图例。
func Legend() []Style {
	out := make([]Style, 0, len(tiers)+1)
	for _, t := range tiers {
		out = append(out, t.style)
	}
	return append(out, oldest)
}
