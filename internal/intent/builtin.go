package intent

import "sync"

// builtinAliases is the seed dictionary. Order matters: on a normalized
// collision the earlier entry wins.
var builtinAliases = []Alias{
	{"молния", "lightning"}, {"молнии", "lightning"}, {"lightning", "lightning"},
	{"паутина", "web"}, {"сеть", "web"}, {"web", "web"},
	{"лечение", "heal"}, {"исцеление", "heal"}, {"heal", "heal"},
	{"призрак", "ghost"}, {"спектр", "ghost"}, {"ghost", "ghost"},
	{"стена", "wall"}, {"wall", "wall"},
	{"огонь", "fireball"}, {"фаербол", "fireball"}, {"fireball", "fireball"},
	{"слизь", "slime"}, {"платформа", "slime"}, {"slime", "slime"},
	{"купол", "dome"}, {"щит", "dome"}, {"dome", "dome"},
	{"ударная волна", "shockwave"}, {"shockwave", "shockwave"},
	{"левитация", "levitate"}, {"подняться", "levitate"}, {"levitate", "levitate"},
	{"метеор", "meteor"}, {"звездный падение", "meteor"}, {"meteor", "meteor"},
	{"толчок", "push"}, {"рывок", "push"}, {"push", "push"},
	{"телепорт", "teleport"}, {"перенос", "teleport"}, {"teleport", "teleport"},
	{"притяжение", "pull"}, {"притяни", "pull"}, {"pull", "pull"},
}

var builtin = sync.OnceValue(func() *Table { return NewTable(builtinAliases) })

// Builtin returns the shared built-in alias table.
func Builtin() *Table { return builtin() }

// BuiltinAliases returns a copy of the seed aliases in declaration order.
func BuiltinAliases() []Alias {
	out := make([]Alias, len(builtinAliases))
	copy(out, builtinAliases)
	return out
}
