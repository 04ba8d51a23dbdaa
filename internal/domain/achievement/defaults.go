package achievement

func req(kind RequirementKind, v int) Requirement {
	return Requirement{Kind: kind, Value: v}
}

// DefaultDefinitions is the production achievement table.
var DefaultDefinitions = []Definition{
	// Training
	{ID: "first_session", Name: "Premier Pas", Description: "Complète ta première session", Icon: "🥇", Category: CategoryTraining, XPReward: 50, Requirement: req(ReqTrainingCount, 1)},
	{ID: "sessions_10", Name: "Échauffé", Description: "10 sessions complétées", Icon: "🔥", Category: CategoryTraining, XPReward: 100, Requirement: req(ReqTrainingCount, 10)},
	{ID: "sessions_50", Name: "Machine de Guerre", Description: "50 sessions complétées", Icon: "⚔️", Category: CategoryTraining, XPReward: 250, Requirement: req(ReqTrainingCount, 50)},
	{ID: "sessions_100", Name: "Légende", Description: "100 sessions complétées", Icon: "🏆", Category: CategoryTraining, XPReward: 500, Requirement: req(ReqTrainingCount, 100)},
	{ID: "tsvp_complete", Name: "Les 4 Éléments", Description: "Complète les 4 étapes TSVP sur un seul tour", Icon: "🌀", Category: CategoryTraining, XPReward: 150, Requirement: req(ReqFullCycleSessions, 1)},
	{ID: "hours_10", Name: "10 Heures au Dojo", Description: "10 heures d'entraînement cumulées", Icon: "⏱️", Category: CategoryTraining, XPReward: 200, Requirement: req(ReqTrainingHours, 10)},
	{ID: "hours_50", Name: "Forgeron du Dojo", Description: "50 heures d'entraînement", Icon: "🔨", Category: CategoryTraining, XPReward: 500, Requirement: req(ReqTrainingHours, 50)},

	// Library
	{ID: "first_trick", Name: "Mon Premier Tour", Description: "Ajoute ton premier tour", Icon: "🎴", Category: CategoryLibrary, XPReward: 100, Requirement: req(ReqLibrarySize, 1)},
	{ID: "tricks_10", Name: "Collectionneur", Description: "10 tours dans ta bibliothèque", Icon: "📚", Category: CategoryLibrary, XPReward: 150, Requirement: req(ReqLibrarySize, 10)},
	{ID: "tricks_25", Name: "Encyclopédie Vivante", Description: "25 tours dans ta bibliothèque", Icon: "📖", Category: CategoryLibrary, XPReward: 250, Requirement: req(ReqLibrarySize, 25)},
	{ID: "first_ready", Name: "Prêt au Combat", Description: "Un tour au stade 'Prêt'", Icon: "⭐", Category: CategoryLibrary, XPReward: 200, Requirement: req(ReqTricksMastered, 1)},
	{ID: "ready_5", Name: "Arsenal Chargé", Description: "5 tours prêts pour le public", Icon: "💎", Category: CategoryLibrary, XPReward: 300, Requirement: req(ReqTricksMastered, 5)},
	{ID: "ready_10", Name: "Maître du Set", Description: "10 tours prêts pour le public", Icon: "👑", Category: CategoryLibrary, XPReward: 500, Requirement: req(ReqTricksMastered, 10)},
	{ID: "all_categories", Name: "Polyvalent", Description: "Au moins 1 tour dans 5 catégories", Icon: "🎯", Category: CategoryLibrary, XPReward: 200, Requirement: req(ReqCategoriesCovered, 5)},

	// Streak
	{ID: "streak_3", Name: "Flamme Allumée", Description: "3 jours consécutifs", Icon: "🕯️", Category: CategoryStreak, XPReward: 75, Requirement: req(ReqCurrentStreak, 3)},
	{ID: "streak_7", Name: "Semaine de Feu", Description: "7 jours consécutifs", Icon: "🔥", Category: CategoryStreak, XPReward: 150, Requirement: req(ReqCurrentStreak, 7)},
	{ID: "streak_14", Name: "Infernal", Description: "14 jours consécutifs", Icon: "🌋", Category: CategoryStreak, XPReward: 300, Requirement: req(ReqCurrentStreak, 14)},
	{ID: "streak_30", Name: "Inarrêtable", Description: "30 jours consécutifs", Icon: "☄️", Category: CategoryStreak, XPReward: 500, Requirement: req(ReqCurrentStreak, 30)},
	{ID: "streak_60", Name: "Phénix", Description: "60 jours consécutifs", Icon: "🦅", Category: CategoryStreak, XPReward: 750, Requirement: req(ReqCurrentStreak, 60)},
	{ID: "streak_100", Name: "Flamme Éternelle", Description: "100 jours consécutifs", Icon: "💎", Category: CategoryStreak, XPReward: 1000, Requirement: req(ReqCurrentStreak, 100)},

	// Social / confidence
	{ID: "first_confidence", Name: "Feedback Courageux", Description: "Note ta confiance après 1 présentation", Icon: "💪", Category: CategorySocial, XPReward: 50, Requirement: req(ReqConfidenceRatings, 1)},
	{ID: "confidence_10", Name: "Terrain Conquis", Description: "10 notes de confiance", Icon: "📊", Category: CategorySocial, XPReward: 200, Requirement: req(ReqConfidenceRatings, 10)},
	{ID: "confidence_max", Name: "Invincible", Description: "Note ta confiance à 10/10", Icon: "🔱", Category: CategorySocial, XPReward: 300, Requirement: req(ReqMaxConfidence, 10)},
}
