package seed

import (
	"strings"
	"time"

	"github.com/orkutrevival/backend/internal/models"
)

// DefaultCommunityPhoto is used when a community is created without a photo
const DefaultCommunityPhoto = "https://images.unsplash.com/photo-1522202176988-66273c2fd55f?w=400&h=300&fit=crop&q=80&auto=format"

// Categories offered by the community form
var Categories = []string{
	"Humor", "Música", "Filmes", "Jogos", "Tecnologia", "Esportes",
	"Educação", "Culinária", "Viagens", "Nostalgia",
}

type demoCommunity struct {
	name        string
	description string
	category    string
	members     int
	tags        []string
}

var demoCatalog = []demoCommunity{
	{"Eu odeio acordar cedo", "Para todos que sofrem quando o despertador toca de manhã.", "Humor", 15420, []string{"sono", "manhã"}},
	{"Eu amo o Orkut", "A comunidade oficial de quem sente saudade dos scraps e depoimentos.", "Nostalgia", 12850, []string{"orkut", "scraps"}},
	{"Rock Nacional", "Legião Urbana, Titãs, Paralamas e tudo que marcou o rock brasileiro.", "Música", 9870, []string{"rock", "brasil"}},
	{"Programadores do Brasil", "Dúvidas, vagas e memes de quem vive de código.", "Tecnologia", 8760, []string{"programação", "dev"}},
	{"Eu não fui com a sua cara", "Quando a antipatia é mútua e imediata.", "Humor", 7650, []string{"sinceridade"}},
	{"Futebol de Várzea", "Campeonatos, resenhas e o churrasco depois do jogo.", "Esportes", 6540, []string{"futebol"}},
	{"Receitas da Vovó", "Aquelas receitas de família que ninguém esquece.", "Culinária", 5430, []string{"receitas", "família"}},
	{"Filmes da Sessão da Tarde", "Para quem cresceu assistindo os mesmos filmes toda semana.", "Filmes", 4320, []string{"filmes", "tv"}},
	{"Mochileiros", "Dicas de viagem barata, roteiros e companhia para a estrada.", "Viagens", 3210, []string{"viagem", "mochilão"}},
	{"Jogos de Fliperama", "Street Fighter, Metal Slug e as fichas que gastamos.", "Jogos", 2980, []string{"games", "retrô"}},
	{"Eu estudo na última hora", "Provas amanhã e o caderno ainda está em branco.", "Educação", 2150, []string{"estudos"}},
	{"Odeio segunda-feira", "Domingo à noite já bate aquela tristeza.", "Humor", 1890, []string{"semana"}},
}

// DemoCommunities returns the built-in catalogue served when the store is
// empty. Ids are stable so the frontend can link to them.
func DemoCommunities() []models.Community {
	created := time.Date(2004, 1, 24, 0, 0, 0, 0, time.UTC)
	out := make([]models.Community, len(demoCatalog))
	for i, d := range demoCatalog {
		out[i] = models.Community{
			ID:             "demo-" + slug(d.name),
			Name:           d.name,
			Description:    d.description,
			Category:       d.category,
			PhotoURL:       DefaultCommunityPhoto,
			MembersCount:   d.members,
			Owner:          "orkut",
			Visibility:     models.VisibilityPublic,
			Rules:          DefaultRules,
			WelcomeMessage: WelcomeMessage(d.name),
			Tags:           models.StringArray(d.tags),
			IsActive:       true,
			CreatedAt:      created.AddDate(0, 0, i),
			UpdatedAt:      created.AddDate(0, 0, i),
		}
	}
	return out
}

// DefaultRules is applied when a community is created without rules
const DefaultRules = "Seja respeitoso e mantenha as discussões relevantes ao tema da comunidade."

// WelcomeMessage is the greeting shown to new members
func WelcomeMessage(name string) string {
	return "Bem-vindo à comunidade " + name + "!"
}

var unaccent = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "é", "e", "ê", "e", "í", "i",
	"ó", "o", "ô", "o", "õ", "o", "ú", "u", "ç", "c",
)

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range unaccent.Replace(strings.ToLower(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
