package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/deemkeen/anancus/db"
	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
	"github.com/gorilla/feeds"
	"github.com/rs/zerolog/log"
)

func GetRSS(conf *util.AppConfig, username string) (string, error) {

	var err error
	var notes *[]domain.Note
	var title string
	var createdBy string
	var email string

	link := fmt.Sprintf("http://%s:%d/feed", conf.Conf.Host, conf.Conf.HttpPort)

	if username != "" {
		err, notes = db.GetDB().ReadNotesByUsername(username)
		if err != nil || *notes == nil {
			log.Error().Err(err).Str("username", username).Msg("Could not get notes")
			return "", errors.New("error retrieving notes by username")
		}
		title = fmt.Sprintf("Anancus Notes - %s", username)
		createdBy = (*notes)[0].CreatedBy
		email = fmt.Sprintf("%s@anancus", (*notes)[0].CreatedBy)
		link = fmt.Sprintf("%s?username=%s", link, username)
	} else {
		err, notes = db.GetDB().ReadAllNotes()
		if err != nil || *notes == nil {
			log.Error().Err(err).Msg("Could not get notes")
			return "", errors.New("error retrieving notes")
		}
		title = "All Anancus Notes"
		createdBy = "everyone"
		email = fmt.Sprintf("%s@anancus", createdBy)
	}

	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: "rss feed for testing anancus",
		Author:      &feeds.Author{Name: createdBy, Email: email},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item
	for _, note := range *notes {
		email := fmt.Sprintf("%s@anancus", note.CreatedBy)
		feedItems = append(feedItems,
			&feeds.Item{
				Id:      note.Id.String(),
				Title:   note.CreatedAt.Format(util.DateTimeFormat()),
				Link:    &feeds.Link{Href: fmt.Sprintf("http://%s:%d/feed/%s", conf.Conf.Host, conf.Conf.HttpPort, note.Id)},
				Content: note.Message,
				Author:  &feeds.Author{Name: note.CreatedBy, Email: email},
				Created: note.CreatedAt,
			})
	}

	feed.Items = feedItems
	return feed.ToRss()
}

func GetRSSItem(conf *util.AppConfig, id uuid.UUID) (string, error) {
	err, note := db.GetDB().ReadNoteId(id)

	if err != nil || note == nil {
		log.Error().Err(err).Msg("Could not get note")
		return "", errors.New("error retrieving note by id")
	}

	email := fmt.Sprintf("%s@anancus", note.CreatedBy)
	url := fmt.Sprintf("http://%s:%d/feed/%s", conf.Conf.Host, conf.Conf.HttpPort, note.Id)

	feed := &feeds.Feed{
		Title:       "Single Anancus Note",
		Link:        &feeds.Link{Href: url},
		Description: "rss feed for testing anancus",
		Author:      &feeds.Author{Name: note.CreatedBy, Email: email},
		Created:     time.Now(),
	}

	var feedItems []*feeds.Item

	feedItems = append(feedItems,
		&feeds.Item{
			Id:      note.Id.String(),
			Title:   note.CreatedAt.Format(util.DateTimeFormat()),
			Link:    &feeds.Link{Href: url},
			Content: note.Message,
			Author:  &feeds.Author{Name: note.CreatedBy, Email: email},
			Created: note.CreatedAt,
		})

	feed.Items = feedItems
	return feed.ToRss()
}
