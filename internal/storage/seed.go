package storage

import (
	"errors"

	"cineshelf/internal/models"
)

// SampleCatalog returns the built-in seed catalog used by fresh deployments
// and by cmd/tools/seed-catalog when no file is supplied.
func SampleCatalog() []CreateMovieParams {
	return []CreateMovieParams{
		{
			Title:       "The Lives of Others",
			Description: "A Stasi officer surveilling a playwright in 1984 East Berlin becomes absorbed by the lives he monitors.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Florian Henckel von Donnersmarck", Bio: "German filmmaker whose debut feature won the Academy Award for Best Foreign Language Film.", BirthYear: 1973},
			Featured:    true,
			ReleaseYear: 2006,
		},
		{
			Title:       "Good Bye Lenin!",
			Description: "A son keeps the fall of the Berlin Wall secret from his fragile socialist mother.",
			Genre:       models.Genre{Name: "Comedy", Description: "Humour, often with a bittersweet edge."},
			Director:    models.Director{Name: "Wolfgang Becker", Bio: "German director best known for his tragicomic portraits of reunification-era Berlin.", BirthYear: 1954},
			ReleaseYear: 2003,
		},
		{
			Title:       "The Post",
			Description: "The Washington Post races to publish the Pentagon Papers against government pressure.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Steven Spielberg", Bio: "American director and producer, one of the most influential filmmakers in cinema history.", BirthYear: 1946},
			ReleaseYear: 2017,
		},
		{
			Title:       "Perfume: The Story of a Murderer",
			Description: "An orphan with a superhuman sense of smell pursues the perfect scent at any cost.",
			Genre:       models.Genre{Name: "Thriller", Description: "Suspense-driven narratives."},
			Director:    models.Director{Name: "Tom Tykwer", Bio: "German director, writer, and composer known for kinetic, formally inventive features.", BirthYear: 1965},
			ReleaseYear: 2006,
		},
		{
			Title:       "In the Mood for Love",
			Description: "Two neighbours in 1962 Hong Kong form a restrained bond after suspecting their spouses of infidelity.",
			Genre:       models.Genre{Name: "Romance", Description: "Stories centred on love and longing."},
			Director:    models.Director{Name: "Wong Kar-wai", Bio: "Hong Kong auteur celebrated for lush, elliptical studies of memory and desire.", BirthYear: 1958},
			Featured:    true,
			ReleaseYear: 2000,
		},
		{
			Title:       "The Truman Show",
			Description: "A man slowly discovers his entire life is a television broadcast.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Peter Weir", Bio: "Australian director whose work spans intimate drama and grand adventure.", BirthYear: 1944},
			ReleaseYear: 1998,
		},
		{
			Title:       "Lost in Translation",
			Description: "A fading actor and a young newlywed drift together in a Tokyo hotel.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Sofia Coppola", Bio: "American director known for atmospheric portraits of isolation and privilege.", BirthYear: 1971},
			ReleaseYear: 2003,
		},
		{
			Title:       "Nostalgia",
			Description: "A Russian poet travelling through Italy is consumed by longing for home.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Andrei Tarkovsky", Bio: "Soviet filmmaker regarded as one of cinema's greatest visual poets.", BirthYear: 1932},
			ReleaseYear: 1983,
		},
		{
			Title:       "The Killing of a Sacred Deer",
			Description: "A surgeon's comfortable life unravels under the demands of a sinister teenager.",
			Genre:       models.Genre{Name: "Thriller", Description: "Suspense-driven narratives."},
			Director:    models.Director{Name: "Yorgos Lanthimos", Bio: "Greek director known for deadpan, unsettling fables.", BirthYear: 1973},
			ReleaseYear: 2017,
		},
		{
			Title:       "A Separation",
			Description: "An Iranian couple's divorce entangles two families in a spiral of guilt and circumstance.",
			Genre:       models.Genre{Name: "Drama", Description: "Character-driven stories with emotional weight."},
			Director:    models.Director{Name: "Asghar Farhadi", Bio: "Iranian writer-director of intricate moral dramas.", BirthYear: 1972},
			Featured:    true,
			ReleaseYear: 2011,
		},
	}
}

// SeedCatalog inserts the provided entries, skipping any whose title already
// exists. It returns the number of movies created, so re-running a seed is
// harmless.
func SeedCatalog(repo Repository, entries []CreateMovieParams) (int, error) {
	created := 0
	for _, params := range entries {
		if _, err := repo.CreateMovie(params); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
