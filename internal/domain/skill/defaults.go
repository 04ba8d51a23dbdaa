package skill

// DefaultNodes is the production skill forest: cards, coins, mentalism.
var DefaultNodes = []Node{
	{ID: "card_basics", Name: "Bases de Cartomagie", Category: "cards", PreUnlocked: true},
	{ID: "classic_force", Name: "Forçage Classique", Category: "cards", Parent: "card_basics", Cost: 100},
	{ID: "false_shuffle", Name: "Faux Mélange", Category: "cards", Parent: "card_basics", Cost: 100},
	{ID: "double_lift", Name: "Double Lift", Category: "cards", Parent: "card_basics", Cost: 150},
	{ID: "palm", Name: "Empalmage", Category: "cards", Parent: "double_lift", Cost: 250},
	{ID: "pass", Name: "La Passe", Category: "cards", Parent: "palm", Cost: 500},
	{ID: "color_change", Name: "Color Change", Category: "cards", Parent: "double_lift", Cost: 200},

	{ID: "coin_basics", Name: "Bases de Pièces", Category: "coins", PreUnlocked: true},
	{ID: "french_drop", Name: "French Drop", Category: "coins", Parent: "coin_basics", Cost: 100},
	{ID: "coin_retention", Name: "Retention Vanish", Category: "coins", Parent: "coin_basics", Cost: 150},
	{ID: "coin_production", Name: "Production de Pièce", Category: "coins", Parent: "french_drop", Cost: 200},

	{ID: "mentalism_basics", Name: "Bases du Mentalisme", Category: "mentalism", PreUnlocked: true},
	{ID: "cold_reading", Name: "Cold Reading", Category: "mentalism", Parent: "mentalism_basics", Cost: 200},
	{ID: "hot_reading", Name: "Hot Reading", Category: "mentalism", Parent: "cold_reading", Cost: 300},
	{ID: "dual_reality", Name: "Double Réalité", Category: "mentalism", Parent: "mentalism_basics", Cost: 250},
}
