package lib

import (
	"context"
	"log"
	"path"
	"raffles/src/config"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var innerApp *firebase.App
var innerAuth *auth.Client
var innerMessaging *messaging.Client
var innerFirestore *firestore.Client

func getOpts() []option.ClientOption {
	cfg := config.Get()
	credentials := path.Join(cfg.SecretsDir, "admin-sdk-credentials.json")
	return []option.ClientOption{option.WithCredentialsFile(credentials)}
}

func getApp(ctx context.Context) (*firebase.App, error) {
	if innerApp != nil {
		return innerApp, nil
	}
	var fc *firebase.Config
	if projectID := config.Get().FirebaseProjectID; projectID != "" {
		fc = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, fc, getOpts()...)
	if err != nil {
		log.Printf("Error initializing app: %s\n", err.Error())
		return nil, err
	}
	innerApp = app
	return app, nil
}

func GetFirebaseAuth() (*auth.Client, error) {
	if innerAuth != nil {
		return innerAuth, nil
	}
	app, err := getApp(context.Background())
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(context.Background())
	if err != nil {
		log.Printf("Error initializing Firebase Auth: %s\n", err.Error())
		return nil, err
	}
	innerAuth = client
	return client, nil
}

func GetFirebaseMessaging() (*messaging.Client, error) {
	if innerMessaging != nil {
		return innerMessaging, nil
	}
	app, err := getApp(context.Background())
	if err != nil {
		return nil, err
	}
	msg, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("Error initializing FCM: %s\n", err.Error())
		return nil, err
	}
	innerMessaging = msg
	return msg, nil
}

// GetFirestore returns the Firestore client of the configured Firebase project.
func GetFirestore(ctx context.Context) (*firestore.Client, error) {
	if innerFirestore != nil {
		return innerFirestore, nil
	}
	app, err := getApp(ctx)
	if err != nil {
		return nil, err
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Printf("Error initializing Firestore: %s\n", err.Error())
		return nil, err
	}
	innerFirestore = client
	return client, nil
}

func NewFirebaseApp(app *firebase.App) {
	innerApp = app
	innerAuth = nil
	innerMessaging = nil
	innerFirestore = nil
}
